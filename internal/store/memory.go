package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/juju/clock"

	"github.com/polteknik/kompen/internal/model"
)

// Memory is an in-process Store.  Transactions are serialised by a single
// mutex and a failed transaction restores the snapshot taken when it
// began, so it honours the same atomicity contract as the MySQL store.
// It backs the tests and the STORE=memory development mode.
type Memory struct {
	mu    sync.RWMutex
	clock clock.Clock
	data  memData
}

type memData struct {
	nextID     uint64
	users      map[uint64]model.User
	jobs       map[uint64]model.Job
	apps       map[uint64]model.JobApplication
	payments   map[uint64]model.Payment
	clearances map[uint64]model.ClearanceRequest
	activity   []model.ActivityLog
	settings   map[string]string
}

// NewMemory returns an empty in-memory store.  A nil clock means the wall
// clock.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Memory{
		clock: clk,
		data: memData{
			users:      make(map[uint64]model.User),
			jobs:       make(map[uint64]model.Job),
			apps:       make(map[uint64]model.JobApplication),
			payments:   make(map[uint64]model.Payment),
			clearances: make(map[uint64]model.ClearanceRequest),
			settings:   make(map[string]string),
		},
	}
}

func (d memData) clone() memData {
	out := memData{
		nextID:     d.nextID,
		users:      make(map[uint64]model.User, len(d.users)),
		jobs:       make(map[uint64]model.Job, len(d.jobs)),
		apps:       make(map[uint64]model.JobApplication, len(d.apps)),
		payments:   make(map[uint64]model.Payment, len(d.payments)),
		clearances: make(map[uint64]model.ClearanceRequest, len(d.clearances)),
		activity:   append([]model.ActivityLog(nil), d.activity...),
		settings:   make(map[string]string, len(d.settings)),
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.jobs {
		out.jobs[k] = v
	}
	for k, v := range d.apps {
		out.apps[k] = v
	}
	for k, v := range d.payments {
		out.payments[k] = v
	}
	for k, v := range d.clearances {
		out.clearances[k] = v
	}
	for k, v := range d.settings {
		out.settings[k] = v
	}
	return out
}

// WithinTx implements Store.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.data.clone()
	committed := false
	defer func() {
		if !committed {
			m.data = snapshot
		}
	}()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (m *Memory) id() uint64 {
	m.data.nextID++
	return m.data.nextID
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ---- Reader ----

func (m *Memory) GetUser(_ context.Context, id uint64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.data.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	username = strings.ToLower(strings.TrimSpace(username))
	for _, u := range m.data.users {
		if strings.ToLower(u.Username) == username {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *Memory) ListUsers(_ context.Context, f UserFilter) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]model.User, 0)
	for _, u := range m.data.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Prodi != "" && u.Prodi != f.Prodi {
			continue
		}
		if f.Kelas != "" && u.Kelas != f.Kelas {
			continue
		}
		if f.WithDebt && u.TotalHours <= 0 {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.NIM), search) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name || (out[i].Name == out[j].Name && out[i].ID < out[j].ID) })
	return page(out, f.Limit, f.Offset), nil
}

func (m *Memory) GetJob(_ context.Context, id uint64) (model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.data.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

func (m *Memory) ListJobs(_ context.Context, f JobFilter) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Job, 0)
	for _, j := range m.data.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.CreatedByID != 0 && j.CreatedByID != f.CreatedByID {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (m *Memory) detail(a model.JobApplication) model.ApplicationDetail {
	d := model.ApplicationDetail{JobApplication: a}
	if j, ok := m.data.jobs[a.JobID]; ok {
		d.JobTitle = j.Title
		d.JobHours = j.Hours
		d.JobOwnerID = j.CreatedByID
	}
	if u, ok := m.data.users[a.UserID]; ok {
		d.StudentName = u.Name
		d.StudentNIM = u.NIM
	}
	return d
}

func (m *Memory) GetApplication(_ context.Context, id uint64) (model.ApplicationDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.data.apps[id]
	if !ok {
		return model.ApplicationDetail{}, ErrNotFound
	}
	return m.detail(a), nil
}

func (m *Memory) ListApplications(_ context.Context, f ApplicationFilter) ([]model.ApplicationDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ApplicationDetail, 0)
	for _, a := range m.data.apps {
		if f.UserID != 0 && a.UserID != f.UserID {
			continue
		}
		if f.JobID != 0 && a.JobID != f.JobID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		d := m.detail(a)
		if f.JobOwnerID != 0 && d.JobOwnerID != f.JobOwnerID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (m *Memory) ListPayments(_ context.Context, f PaymentFilter) ([]model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Payment, 0)
	for _, p := range m.data.payments {
		if f.UserID != 0 && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, f.Limit, f.Offset), nil
}

func (m *Memory) ListClearances(_ context.Context, status model.ClearanceStatus) ([]model.ClearanceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClearanceRequest, 0)
	for _, c := range m.data.clearances {
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Memory) ListActivity(_ context.Context, limit int) ([]model.ActivityLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ActivityLog, 0, len(m.data.activity))
	for i := len(m.data.activity) - 1; i >= 0; i-- {
		out = append(out, m.data.activity[i])
	}
	return page(out, limit, 0), nil
}

func (m *Memory) Settings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data.settings))
	for k, v := range m.data.settings {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Stats(_ context.Context) (model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := model.Stats{
		ApplicationsByState: make(map[model.ApplicationStatus]int),
		PaymentsByState:     make(map[model.PaymentStatus]int),
	}
	for _, u := range m.data.users {
		if u.Role != model.RoleMahasiswa {
			continue
		}
		st.Students++
		if u.TotalHours > 0 {
			st.StudentsWithDebt++
			st.OutstandingHours += int64(u.TotalHours)
		}
	}
	for _, j := range m.data.jobs {
		if j.Status == model.JobOpen {
			st.OpenJobs++
		}
	}
	for _, a := range m.data.apps {
		st.ApplicationsByState[a.Status]++
	}
	for _, p := range m.data.payments {
		st.PaymentsByState[p.Status]++
		if p.Status == model.PaymentApproved {
			st.ApprovedAmount += p.Amount
		}
	}
	for _, c := range m.data.clearances {
		if c.Status == model.ClearancePending {
			st.PendingClearances++
		}
	}
	return st, nil
}

// ---- Tx ----

// memTx operates on the store while WithinTx holds the write lock.
type memTx struct{ m *Memory }

func (t *memTx) UserForUpdate(_ context.Context, id uint64) (model.User, error) {
	u, ok := t.m.data.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) uniqueUser(u model.User) error {
	for _, other := range t.m.data.users {
		if other.ID == u.ID {
			continue
		}
		if strings.EqualFold(other.Username, u.Username) {
			return fmt.Errorf("username %q: %w", u.Username, ErrDuplicate)
		}
		if u.NIM != "" && other.NIM == u.NIM {
			return fmt.Errorf("nim %q: %w", u.NIM, ErrDuplicate)
		}
	}
	return nil
}

func (t *memTx) CreateUser(_ context.Context, u *model.User) error {
	if err := t.uniqueUser(*u); err != nil {
		return err
	}
	now := t.m.clock.Now().UTC()
	u.ID = t.m.id()
	u.CreatedAt, u.UpdatedAt = now, now
	t.m.data.users[u.ID] = *u
	return nil
}

func (t *memTx) UpdateUser(_ context.Context, u model.User) error {
	cur, ok := t.m.data.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if err := t.uniqueUser(u); err != nil {
		return err
	}
	u.TotalHours = cur.TotalHours
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = t.m.clock.Now().UTC()
	t.m.data.users[u.ID] = u
	return nil
}

func (t *memTx) SetUserHours(_ context.Context, id uint64, hours int) error {
	u, ok := t.m.data.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TotalHours = hours
	u.UpdatedAt = t.m.clock.Now().UTC()
	t.m.data.users[id] = u
	return nil
}

func (t *memTx) DeleteUser(_ context.Context, id uint64) error {
	if _, ok := t.m.data.users[id]; !ok {
		return ErrNotFound
	}
	delete(t.m.data.users, id)
	for cid, c := range t.m.data.clearances {
		if c.UserID == id {
			delete(t.m.data.clearances, cid)
		}
	}
	return nil
}

func (t *memTx) UserReferenced(_ context.Context, id uint64) (bool, error) {
	for _, a := range t.m.data.apps {
		if a.UserID == id {
			return true, nil
		}
	}
	for _, p := range t.m.data.payments {
		if p.UserID == id || p.CreatedByID == id {
			return true, nil
		}
	}
	for _, j := range t.m.data.jobs {
		if j.CreatedByID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) JobForUpdate(_ context.Context, id uint64) (model.Job, error) {
	j, ok := t.m.data.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return j, nil
}

func (t *memTx) CreateJob(_ context.Context, j *model.Job) error {
	now := t.m.clock.Now().UTC()
	j.ID = t.m.id()
	j.CreatedAt, j.UpdatedAt = now, now
	t.m.data.jobs[j.ID] = *j
	return nil
}

func (t *memTx) UpdateJob(_ context.Context, j model.Job) error {
	cur, ok := t.m.data.jobs[j.ID]
	if !ok {
		return ErrNotFound
	}
	j.CreatedAt = cur.CreatedAt
	j.CreatedByID = cur.CreatedByID
	j.UpdatedAt = t.m.clock.Now().UTC()
	t.m.data.jobs[j.ID] = j
	return nil
}

func (t *memTx) DeleteJob(_ context.Context, id uint64) error {
	if _, ok := t.m.data.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(t.m.data.jobs, id)
	for aid, a := range t.m.data.apps {
		if a.JobID == id {
			delete(t.m.data.apps, aid)
		}
	}
	return nil
}

func (t *memTx) CountApplicationsForJob(_ context.Context, jobID uint64) (int, error) {
	n := 0
	for _, a := range t.m.data.apps {
		if a.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) ApplicationForUpdate(_ context.Context, id uint64) (model.JobApplication, error) {
	a, ok := t.m.data.apps[id]
	if !ok {
		return model.JobApplication{}, ErrNotFound
	}
	return a, nil
}

func (t *memTx) ApplicationExists(_ context.Context, jobID, userID uint64) (bool, error) {
	for _, a := range t.m.data.apps {
		if a.JobID == jobID && a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountPendingApplications(_ context.Context, userID uint64) (int, error) {
	n := 0
	for _, a := range t.m.data.apps {
		if a.UserID == userID && a.Status == model.ApplicationPending {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateApplication(ctx context.Context, a *model.JobApplication) error {
	if exists, _ := t.ApplicationExists(ctx, a.JobID, a.UserID); exists {
		return ErrDuplicate
	}
	a.ID = t.m.id()
	a.UpdatedAt = a.AppliedAt
	t.m.data.apps[a.ID] = *a
	return nil
}

func (t *memTx) UpdateApplication(_ context.Context, a model.JobApplication) error {
	if _, ok := t.m.data.apps[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = t.m.clock.Now().UTC()
	t.m.data.apps[a.ID] = a
	return nil
}

func (t *memTx) PaymentForUpdate(_ context.Context, id uint64) (model.Payment, error) {
	p, ok := t.m.data.payments[id]
	if !ok {
		return model.Payment{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *model.Payment) error {
	p.ID = t.m.id()
	p.CreatedAt = t.m.clock.Now().UTC()
	t.m.data.payments[p.ID] = *p
	return nil
}

func (t *memTx) UpdatePayment(_ context.Context, p model.Payment) error {
	if _, ok := t.m.data.payments[p.ID]; !ok {
		return ErrNotFound
	}
	t.m.data.payments[p.ID] = p
	return nil
}

func (t *memTx) ClearanceForUpdate(_ context.Context, id uint64) (model.ClearanceRequest, error) {
	c, ok := t.m.data.clearances[id]
	if !ok {
		return model.ClearanceRequest{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) CreateClearanceIfAbsent(_ context.Context, c *model.ClearanceRequest) (bool, error) {
	for _, existing := range t.m.data.clearances {
		if existing.UserID == c.UserID {
			*c = existing
			return false, nil
		}
	}
	now := t.m.clock.Now().UTC()
	c.ID = t.m.id()
	c.CreatedAt, c.UpdatedAt = now, now
	t.m.data.clearances[c.ID] = *c
	return true, nil
}

func (t *memTx) UpdateClearance(_ context.Context, c model.ClearanceRequest) error {
	if _, ok := t.m.data.clearances[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = t.m.clock.Now().UTC()
	t.m.data.clearances[c.ID] = c
	return nil
}

func (t *memTx) AppendActivity(_ context.Context, l *model.ActivityLog) error {
	if len(l.Details) == 0 {
		l.Details = json.RawMessage("{}")
	}
	l.ID = t.m.id()
	l.CreatedAt = t.m.clock.Now().UTC()
	t.m.data.activity = append(t.m.data.activity, *l)
	return nil
}

func (t *memTx) SetSetting(_ context.Context, key, value string) error {
	t.m.data.settings[key] = value
	return nil
}

func (t *memTx) Setting(_ context.Context, key string) (string, error) {
	v, ok := t.m.data.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}
