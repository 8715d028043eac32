package clusterspec

import "path"

// ClustersDir is the store prefix under which every cluster keeps its files.
const ClustersDir = "clusters"

const SpecificationFile = "cluster.json"

const (
	originalConfDir  = "original"
	generatedConfDir = "generated"
	dataDir          = "data"
	tmpDir           = "tmp"
)

// Store keys of a cluster's persisted files. Keys are slash separated and relative to the store root.

func ClusterDir(name string) string {
	return path.Join(ClustersDir, name)
}

func SpecificationPath(name string) string {
	return path.Join(ClusterDir(name), SpecificationFile)
}

func OriginalConfPath(name string) string {
	return path.Join(ClusterDir(name), originalConfDir)
}

func GeneratedConfPath(name string) string {
	return path.Join(ClusterDir(name), generatedConfDir)
}

func DataPath(name string) string {
	return path.Join(ClusterDir(name), dataDir)
}

// TmpPath is the scratch directory of a single launch of the cluster.
func TmpPath(name string, instanceId string) string {
	return path.Join(ClusterDir(name), tmpDir, instanceId)
}
