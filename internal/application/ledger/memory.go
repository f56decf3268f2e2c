package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Memory is an in-process ledger with the same idempotency contract as the
// gateway. Used for local development without LEDGER_URL and in tests.
type Memory struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	order   []string

	// Fail, when set, is consulted before every call; a non-nil result is returned as the call's error.
	Fail func(op string) error
	// Delay blocks each submission, honouring ctx cancellation.
	Delay time.Duration
}

type memoryRecord struct {
	Op      string
	Payload []byte
	Receipt Receipt
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]memoryRecord)}
}

func (m *Memory) SubmitTokenCreation(ctx context.Context, rec TokenCreation) (*Receipt, error) {
	return m.submit(ctx, "submitTokenCreation", rec.IdempotencyKey, rec)
}

func (m *Memory) SubmitDividend(ctx context.Context, rec Dividend) (*Receipt, error) {
	return m.submit(ctx, "submitDividend", rec.IdempotencyKey, rec)
}

func (m *Memory) Ping(ctx context.Context) error {
	if err := m.fail("ping"); err != nil {
		return err
	}
	return ctx.Err()
}

// Count returns how many distinct records were appended for op.
func (m *Memory) Count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.order {
		if m.records[k].Op == op {
			n++
		}
	}
	return n
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func (m *Memory) submit(ctx context.Context, op, key string, payload interface{}) (*Receipt, error) {
	if err := m.fail(op); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, &Error{Op: op, Permanent: true, Err: errors.New("missing idempotency key")}
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, &Error{Op: op, Err: ctx.Err()}
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Op: op, Permanent: true, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]memoryRecord)
	}
	if existing, ok := m.records[key]; ok {
		if existing.Op != op || string(existing.Payload) != string(body) {
			return nil, &Error{Op: op, StatusCode: 409, Permanent: true, Err: errors.New("idempotency key reused with a different record")}
		}
		r := existing.Receipt
		return &r, nil
	}
	sum := sha256.Sum256(append([]byte(op+":"+key+":"), body...))
	r := Receipt{Handle: "0x" + hex.EncodeToString(sum[:]), ConfirmedAt: time.Now().UTC()}
	m.records[key] = memoryRecord{Op: op, Payload: body, Receipt: r}
	m.order = append(m.order, key)
	return &r, nil
}
