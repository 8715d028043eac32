package broker

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

// Hooks let tests act at well-defined points of the broker's work, e.g. to simulate a concurrent
// actor. Hooks run without the broker's lock held.
type Hooks struct {
	// AfterSubmit is called with the id of every new instance.
	AfterSubmit func(instanceId string, descriptor *LaunchDescriptor)
	// BeforeList is called before each ListByType with the 1-based number of the call.
	BeforeList func(call int)
}

// InMemory is a broker kept entirely in process memory, used by the fake broker server and tests.
// Each report fetch moves an instance one state closer to RUNNING unless advancing is disabled.
// Instances live in a go-memdb table; rows are replaced, never modified in place.
type InMemory struct {
	db *memdb.MemDB

	mu        sync.Mutex
	clock     clock.Clock
	entropy   *ulid.MonotonicEntropy
	seq       uint64
	listCalls int
	advance   bool
	host      string
	rpcPort   int
	hooks     Hooks
}

const (
	instancesTable = "instances"
	idIndex        = "id"
	orderIndex     = "order"
	typeIndex      = "type"
	nameIndex      = "name"
)

// instanceRecord is one row of the instances table. Seq is the submission order.
type instanceRecord struct {
	Id         string
	Name       string
	Type       string
	Seq        uint64
	Report     InstanceReport
	Descriptor *LaunchDescriptor
}

func newInstanceRecord(seq uint64, report InstanceReport, descriptor *LaunchDescriptor) *instanceRecord {
	return &instanceRecord{
		Id:         report.Id,
		Name:       report.Name,
		Type:       report.Type,
		Seq:        seq,
		Report:     report,
		Descriptor: descriptor,
	}
}

// withState returns a copy of the record moved to state. A record reaching RUNNING for the first time
// is given host and rpcPort.
func (r *instanceRecord) withState(state InstanceState, finalStatus FinalStatus, host string, rpcPort int) *instanceRecord {
	copied := *r
	copied.Report.State = state
	copied.Report.FinalStatus = finalStatus
	if state == StateRunning && copied.Report.Host == "" {
		copied.Report.Host = host
		copied.Report.RpcPort = rpcPort
	}
	return &copied
}

func (r *instanceRecord) report() *InstanceReport {
	report := r.Report
	return &report
}

func instancesSchema() *memdb.DBSchema {
	indexes := map[string]*memdb.IndexSchema{
		idIndex: {
			Name:    idIndex,
			Unique:  true,
			Indexer: &memdb.StringFieldIndex{Field: "Id"},
		},
		orderIndex: {
			Name:    orderIndex,
			Unique:  true,
			Indexer: &memdb.UintFieldIndex{Field: "Seq"},
		},
		typeIndex: {
			Name:         typeIndex,
			AllowMissing: true,
			Indexer:      &memdb.StringFieldIndex{Field: "Type"},
		},
		nameIndex: {
			Name:         nameIndex,
			AllowMissing: true,
			Indexer:      &memdb.StringFieldIndex{Field: "Name"},
		},
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			instancesTable: {
				Name:    instancesTable,
				Indexes: indexes,
			},
		},
	}
}

func NewInMemory(clock clock.Clock) *InMemory {
	db, err := memdb.NewMemDB(instancesSchema())
	if err != nil {
		panic(errors.WithStack(err))
	}
	return &InMemory{
		db:      db,
		clock:   clock,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(clock.Now().UnixNano())), 0),
		advance: true,
		host:    "localhost",
	}
}

// WithEndpoint sets the address reported for instances once they are running.
func (b *InMemory) WithEndpoint(host string, rpcPort int) *InMemory {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.host = host
	b.rpcPort = rpcPort
	return b
}

// WithAdvance controls whether fetching a report progresses the instance towards RUNNING.
func (b *InMemory) WithAdvance(advance bool) *InMemory {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance = advance
	return b
}

func (b *InMemory) WithHooks(hooks Hooks) *InMemory {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = hooks
	return b
}

func (b *InMemory) nextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// newInstanceId returns an id that sorts after every id handed out before it.
func (b *InMemory) newInstanceId() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(b.clock.Now()), b.entropy)
	return "application_" + strings.ToLower(id.String())
}

func (b *InMemory) endpoint() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host, b.rpcPort
}

func (b *InMemory) Submit(_ context.Context, descriptor *LaunchDescriptor) (string, error) {
	if descriptor == nil || descriptor.Name == "" {
		return "", &flotillaerrors.ErrInvalidArgument{Name: "name", Value: "", Message: "launch descriptor has no name"}
	}
	report := InstanceReport{
		Id:        b.newInstanceId(),
		Name:      descriptor.Name,
		User:      descriptor.User,
		Type:      descriptor.Type,
		Queue:     descriptor.Queue,
		State:     StateSubmitted,
		StartTime: b.clock.Now().UnixMilli(),
	}
	if err := b.insert(newInstanceRecord(b.nextSeq(), report, descriptor)); err != nil {
		return "", err
	}

	b.mu.Lock()
	hook := b.hooks.AfterSubmit
	b.mu.Unlock()
	if hook != nil {
		hook(report.Id, descriptor)
	}
	return report.Id, nil
}

func (b *InMemory) insert(record *instanceRecord) error {
	txn := b.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(instancesTable, record); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func getRecord(txn *memdb.Txn, instanceId string) (*instanceRecord, error) {
	raw, err := txn.First(instancesTable, idIndex, instanceId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if raw == nil {
		return nil, &flotillaerrors.ErrNotFound{Type: "instance", Value: instanceId}
	}
	return raw.(*instanceRecord), nil
}

// update replaces the record of instanceId with change(record) in a single write transaction. A nil
// result leaves the record as it is.
func (b *InMemory) update(instanceId string, change func(*instanceRecord) *instanceRecord) (*instanceRecord, error) {
	txn := b.db.Txn(true)
	defer txn.Abort()
	record, err := getRecord(txn, instanceId)
	if err != nil {
		return nil, err
	}
	if changed := change(record); changed != nil {
		if err := txn.Insert(instancesTable, changed); err != nil {
			return nil, errors.WithStack(err)
		}
		record = changed
	}
	txn.Commit()
	return record, nil
}

func (b *InMemory) GetReport(_ context.Context, instanceId string) (*InstanceReport, error) {
	b.mu.Lock()
	advance := b.advance
	b.mu.Unlock()
	host, rpcPort := b.endpoint()
	record, err := b.update(instanceId, func(r *instanceRecord) *instanceRecord {
		if advance && r.Report.State < StateRunning {
			return r.withState(r.Report.State+1, FinalStatusUndefined, host, rpcPort)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record.report(), nil
}

func (b *InMemory) ListByType(_ context.Context, applicationType string) ([]*InstanceReport, error) {
	b.mu.Lock()
	b.listCalls++
	call := b.listCalls
	hook := b.hooks.BeforeList
	b.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	txn := b.db.Txn(false)
	defer txn.Abort()
	var records []*instanceRecord
	var err error
	if applicationType == "" {
		records, err = collect(txn.Get(instancesTable, orderIndex))
	} else {
		records, err = collect(txn.Get(instancesTable, typeIndex, applicationType))
		slices.SortFunc(records, func(r1, r2 *instanceRecord) bool {
			return r1.Seq < r2.Seq
		})
	}
	if err != nil {
		return nil, err
	}
	reports := make([]*InstanceReport, len(records))
	for i, record := range records {
		reports[i] = record.report()
	}
	return reports, nil
}

func collect(it memdb.ResultIterator, err error) ([]*instanceRecord, error) {
	if err != nil {
		return nil, errors.WithStack(err)
	}
	records := []*instanceRecord{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(*instanceRecord))
	}
	return records, nil
}

func (b *InMemory) Kill(_ context.Context, instanceId string) error {
	host, rpcPort := b.endpoint()
	_, err := b.update(instanceId, func(r *instanceRecord) *instanceRecord {
		if r.Report.State.IsLive() {
			return r.withState(StateKilled, FinalStatusKilled, host, rpcPort)
		}
		return nil
	})
	return err
}

// SetState forces an instance into state. It is how tests and the fake coordinator end instances.
func (b *InMemory) SetState(instanceId string, state InstanceState, finalStatus FinalStatus) error {
	host, rpcPort := b.endpoint()
	_, err := b.update(instanceId, func(r *instanceRecord) *instanceRecord {
		return r.withState(state, finalStatus, host, rpcPort)
	})
	return err
}

// Finish ends every live instance of cluster as succeeded. Its signature matches the coordinator's
// stop handler, so a stopped cluster's instance finishes the way a real coordinator exits.
func (b *InMemory) Finish(cluster string, _ string) {
	host, rpcPort := b.endpoint()
	txn := b.db.Txn(true)
	defer txn.Abort()
	records, err := collect(txn.Get(instancesTable, nameIndex, cluster))
	if err != nil {
		log.WithError(err).Errorf("Failed to finish instances of cluster %s", cluster)
		return
	}
	for _, record := range records {
		if !record.Report.State.IsLive() {
			continue
		}
		if err := txn.Insert(instancesTable, record.withState(StateFinished, FinalStatusSucceeded, host, rpcPort)); err != nil {
			log.WithError(err).Errorf("Failed to finish instance %s", record.Id)
			return
		}
	}
	txn.Commit()
}

// Inject adds a report as if it had been submitted by another actor and returns its id. A report
// with the id of an existing instance replaces it.
func (b *InMemory) Inject(report InstanceReport) string {
	if report.Id == "" {
		report.Id = b.newInstanceId()
	}
	if err := b.insert(newInstanceRecord(b.nextSeq(), report, nil)); err != nil {
		panic(err)
	}
	return report.Id
}

// Descriptor returns the launch descriptor an instance was submitted with.
func (b *InMemory) Descriptor(instanceId string) (*LaunchDescriptor, bool) {
	txn := b.db.Txn(false)
	defer txn.Abort()
	record, err := getRecord(txn, instanceId)
	if err != nil || record.Descriptor == nil {
		return nil, false
	}
	return record.Descriptor, true
}

// Ids returns the ids of all instances in submission order.
func (b *InMemory) Ids() []string {
	txn := b.db.Txn(false)
	defer txn.Abort()
	records, err := collect(txn.Get(instancesTable, orderIndex))
	if err != nil {
		return nil
	}
	ids := make([]string, len(records))
	for i, record := range records {
		ids[i] = record.Id
	}
	return ids
}
