package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadmapper-ai/roadmapper/roadmap"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for testing and single-process development. Thread-safe. Data is
// lost when the process terminates; production deployments use SQLiteStore.
type MemStore struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	roadmaps  map[string]*Roadmap
	tutorials []*Tutorial
	resources map[string]*ResourceBundle // roadmapID+"\x00"+conceptID
	quizzes   map[string]*Quiz
	vrecords  map[string][]*ValidationRecord // taskID
	erecords  map[string][]*EditRecord
	reviews   map[string][]*ReviewFeedback
	plans     map[string][]*EditPlanRecord
	logs      map[string][]LogEntry
	profiles  map[string]*UserProfile
	notes     map[string][]*Note // roadmapID
	chats     map[string][]*ChatMessage

	// now is swappable in tests.
	now func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:     make(map[string]*Task),
		roadmaps:  make(map[string]*Roadmap),
		resources: make(map[string]*ResourceBundle),
		quizzes:   make(map[string]*Quiz),
		vrecords:  make(map[string][]*ValidationRecord),
		erecords:  make(map[string][]*EditRecord),
		reviews:   make(map[string][]*ReviewFeedback),
		plans:     make(map[string][]*EditPlanRecord),
		logs:      make(map[string][]LogEntry),
		profiles:  make(map[string]*UserProfile),
		notes:     make(map[string][]*Note),
		chats:     make(map[string][]*ChatMessage),
		now:       time.Now,
	}
}

// deepCopy isolates stored values from caller mutation via a JSON
// round-trip. All stored entities are JSON-serializable by construction.
func deepCopy[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return out, nil
}

func pairKey(roadmapID, conceptID string) string {
	return roadmapID + "\x00" + conceptID
}

// --- TaskStore ---

func (m *MemStore) CreateTask(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.TaskID]; exists {
		return fmt.Errorf("task %s already exists", task.TaskID)
	}
	cp, err := deepCopy(*task)
	if err != nil {
		return err
	}
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	m.tasks[task.TaskID] = &cp
	return nil
}

func (m *MemStore) GetTask(_ context.Context, taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := deepCopy(*t)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MemStore) UpdateTaskStatus(_ context.Context, taskID, status, currentStep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	if currentStep != "" {
		t.CurrentStep = currentStep
	}
	t.UpdatedAt = m.now()
	if IsTerminalStatus(status) && t.CompletedAt == nil {
		done := t.UpdatedAt
		t.CompletedAt = &done
	}
	return nil
}

func (m *MemStore) SetTaskRoadmap(_ context.Context, taskID, roadmapID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.RoadmapID = roadmapID
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SetTaskError(_ context.Context, taskID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = TaskFailed
	t.ErrorMessage = message
	t.UpdatedAt = m.now()
	if t.CompletedAt == nil {
		done := t.UpdatedAt
		t.CompletedAt = &done
	}
	return nil
}

func (m *MemStore) FinishTask(_ context.Context, taskID, status string, summary *ExecutionSummary, failed map[string]ConceptFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	if summary != nil {
		cp, err := deepCopy(*summary)
		if err != nil {
			return err
		}
		t.Summary = &cp
	}
	if failed != nil {
		cp, err := deepCopy(failed)
		if err != nil {
			return err
		}
		t.FailedConcepts = cp
	}
	t.UpdatedAt = m.now()
	if IsTerminalStatus(status) && t.CompletedAt == nil {
		done := t.UpdatedAt
		t.CompletedAt = &done
	}
	return nil
}

func (m *MemStore) ListTasks(_ context.Context, status, taskType string, since time.Time) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Task
	for _, t := range m.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if taskType != "" && t.TaskType != taskType {
			continue
		}
		if !since.IsZero() && t.CreatedAt.Before(since) {
			continue
		}
		cp, err := deepCopy(*t)
		if err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- RoadmapStore ---

func (m *MemStore) CreateRoadmap(_ context.Context, r *Roadmap) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.roadmaps[r.RoadmapID]; exists {
		return ErrRoadmapIDTaken
	}
	cp, err := deepCopy(*r)
	if err != nil {
		return err
	}
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	if cp.Framework != nil {
		cp.TotalStages = len(cp.Framework.Stages)
		cp.TotalConcepts = cp.Framework.ConceptCount()
		if cp.Title == "" {
			cp.Title = cp.Framework.Title
		}
	}
	m.roadmaps[r.RoadmapID] = &cp
	return nil
}

func (m *MemStore) GetRoadmap(_ context.Context, roadmapID string) (*Roadmap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.roadmaps[roadmapID]
	if !ok || r.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp, err := deepCopy(*r)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MemStore) RoadmapIDExists(_ context.Context, roadmapID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roadmaps[roadmapID]
	return ok, nil
}

func (m *MemStore) SaveFramework(_ context.Context, roadmapID string, fw *roadmap.Framework) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.roadmaps[roadmapID]
	if !ok {
		return ErrNotFound
	}
	cp, err := deepCopy(fw)
	if err != nil {
		return err
	}
	r.Framework = cp
	r.Title = cp.Title
	r.TotalStages = len(cp.Stages)
	r.TotalConcepts = cp.ConceptCount()
	r.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) ListRoadmapsByUser(_ context.Context, userID string) ([]*Roadmap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Roadmap
	for _, r := range m.roadmaps {
		if r.UserID != userID || r.DeletedAt != nil {
			continue
		}
		cp, err := deepCopy(*r)
		if err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) SoftDeleteRoadmap(_ context.Context, roadmapID, deletedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.roadmaps[roadmapID]
	if !ok || r.DeletedAt != nil {
		return ErrNotFound
	}
	now := m.now()
	r.DeletedAt = &now
	r.DeletedBy = deletedBy
	r.UpdatedAt = now
	return nil
}

func (m *MemStore) SweepDeleted(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, r := range m.roadmaps {
		if r.DeletedAt != nil && r.DeletedAt.Before(cutoff) {
			delete(m.roadmaps, id)
			removed++
		}
	}
	return removed, nil
}

// --- TutorialStore ---

func (m *MemStore) SaveTutorial(_ context.Context, t *Tutorial) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxVersion := 0
	for _, existing := range m.tutorials {
		if existing.RoadmapID == t.RoadmapID && existing.ConceptID == t.ConceptID {
			existing.IsLatest = false
			if existing.ContentVersion > maxVersion {
				maxVersion = existing.ContentVersion
			}
		}
	}
	cp, err := deepCopy(*t)
	if err != nil {
		return err
	}
	if cp.TutorialID == "" {
		cp.TutorialID = uuid.NewString()
	}
	cp.ContentVersion = maxVersion + 1
	cp.IsLatest = true
	cp.CreatedAt = m.now()
	m.tutorials = append(m.tutorials, &cp)

	t.TutorialID = cp.TutorialID
	t.ContentVersion = cp.ContentVersion
	t.IsLatest = true
	return nil
}

func (m *MemStore) LatestTutorial(_ context.Context, roadmapID, conceptID string) (*Tutorial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tutorials {
		if t.RoadmapID == roadmapID && t.ConceptID == conceptID && t.IsLatest {
			cp, err := deepCopy(*t)
			if err != nil {
				return nil, err
			}
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) TutorialVersions(_ context.Context, roadmapID, conceptID string) ([]*Tutorial, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Tutorial
	for _, t := range m.tutorials {
		if t.RoadmapID == roadmapID && t.ConceptID == conceptID {
			cp, err := deepCopy(*t)
			if err != nil {
				return nil, err
			}
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentVersion > out[j].ContentVersion })
	return out, nil
}

func (m *MemStore) CompletedTutorialConcepts(_ context.Context, roadmapID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, t := range m.tutorials {
		if t.RoadmapID == roadmapID && t.IsLatest && t.Status == roadmap.StatusCompleted {
			out = append(out, t.ConceptID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- ResourceStore ---

func (m *MemStore) ReplaceResources(_ context.Context, b *ResourceBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*b)
	if err != nil {
		return err
	}
	if cp.ResourcesID == "" {
		cp.ResourcesID = uuid.NewString()
	}
	cp.CreatedAt = m.now()
	m.resources[pairKey(b.RoadmapID, b.ConceptID)] = &cp
	b.ResourcesID = cp.ResourcesID
	return nil
}

func (m *MemStore) GetResources(_ context.Context, roadmapID, conceptID string) (*ResourceBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.resources[pairKey(roadmapID, conceptID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := deepCopy(*b)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// --- QuizStore ---

func (m *MemStore) ReplaceQuiz(_ context.Context, q *Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*q)
	if err != nil {
		return err
	}
	if cp.QuizID == "" {
		cp.QuizID = uuid.NewString()
	}
	cp.CreatedAt = m.now()
	m.quizzes[pairKey(q.RoadmapID, q.ConceptID)] = &cp
	q.QuizID = cp.QuizID
	return nil
}

func (m *MemStore) GetQuiz(_ context.Context, roadmapID, conceptID string) (*Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quizzes[pairKey(roadmapID, conceptID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := deepCopy(*q)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// --- AuditStore ---

func addRecord[T any](m *MemStore, byTask map[string][]*T, taskID string, rec *T, stamp func(*T)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*rec)
	if err != nil {
		return err
	}
	stamp(&cp)
	byTask[taskID] = append(byTask[taskID], &cp)
	return nil
}

func listRecords[T any](m *MemStore, byTask map[string][]*T, taskID string) ([]*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*T
	for _, rec := range byTask[taskID] {
		cp, err := deepCopy(*rec)
		if err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) AddValidationRecord(_ context.Context, rec *ValidationRecord) error {
	return addRecord(m, m.vrecords, rec.TaskID, rec, func(r *ValidationRecord) {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = m.now()
	})
}

func (m *MemStore) ListValidationRecords(_ context.Context, taskID string) ([]*ValidationRecord, error) {
	return listRecords(m, m.vrecords, taskID)
}

func (m *MemStore) AddEditRecord(_ context.Context, rec *EditRecord) error {
	return addRecord(m, m.erecords, rec.TaskID, rec, func(r *EditRecord) {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = m.now()
	})
}

func (m *MemStore) ListEditRecords(_ context.Context, taskID string) ([]*EditRecord, error) {
	return listRecords(m, m.erecords, taskID)
}

func (m *MemStore) AddReviewFeedback(_ context.Context, rec *ReviewFeedback) error {
	return addRecord(m, m.reviews, rec.TaskID, rec, func(r *ReviewFeedback) {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = m.now()
	})
}

func (m *MemStore) ListReviewFeedback(_ context.Context, taskID string) ([]*ReviewFeedback, error) {
	return listRecords(m, m.reviews, taskID)
}

func (m *MemStore) AddEditPlanRecord(_ context.Context, rec *EditPlanRecord) error {
	return addRecord(m, m.plans, rec.TaskID, rec, func(r *EditPlanRecord) {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = m.now()
	})
}

func (m *MemStore) ListEditPlanRecords(_ context.Context, taskID string) ([]*EditPlanRecord, error) {
	return listRecords(m, m.plans, taskID)
}

// --- LogStore ---

func (m *MemStore) AppendLogs(_ context.Context, entries []LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		cp, err := deepCopy(e)
		if err != nil {
			return err
		}
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = m.now()
		}
		m.logs[cp.TaskID] = append(m.logs[cp.TaskID], cp)
	}
	return nil
}

func (m *MemStore) QueryLogs(_ context.Context, taskID string, filter LogFilter) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []LogEntry
	for _, e := range m.logs[taskID] {
		if filter.Level != "" && e.Level != filter.Level {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		matched = append(matched, e)
	}
	// Newest first; ties resolve by insertion order reversed.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]LogEntry, 0, len(matched))
	for _, e := range matched {
		cp, err := deepCopy(e)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *MemStore) SummarizeLogs(_ context.Context, taskID string) (*LogSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := &LogSummary{
		CountsByLevel: make(map[string]int),
		CountsByCat:   make(map[string]int),
	}
	for _, e := range m.logs[taskID] {
		sum.Total++
		sum.CountsByLevel[e.Level]++
		sum.CountsByCat[e.Category]++
		sum.TotalDurationMS += e.DurationMS
		if sum.FirstAt.IsZero() || e.CreatedAt.Before(sum.FirstAt) {
			sum.FirstAt = e.CreatedAt
		}
		if e.CreatedAt.After(sum.LastAt) {
			sum.LastAt = e.CreatedAt
		}
	}
	return sum, nil
}

// --- ProfileStore ---

func (m *MemStore) GetProfile(_ context.Context, userID string) (*UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := deepCopy(*p)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MemStore) PutProfile(_ context.Context, p *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*p)
	if err != nil {
		return err
	}
	cp.UpdatedAt = m.now()
	m.profiles[p.UserID] = &cp
	return nil
}

// --- NoteStore ---

func (m *MemStore) AddNote(_ context.Context, n *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*n)
	if err != nil {
		return err
	}
	if cp.NoteID == "" {
		cp.NoteID = uuid.NewString()
	}
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	m.notes[n.RoadmapID] = append(m.notes[n.RoadmapID], &cp)
	n.NoteID = cp.NoteID
	return nil
}

func (m *MemStore) ListNotes(_ context.Context, roadmapID string) ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Note
	for _, n := range m.notes[roadmapID] {
		cp, err := deepCopy(*n)
		if err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) DeleteNote(_ context.Context, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for roadmapID, notes := range m.notes {
		for i, n := range notes {
			if n.NoteID == noteID {
				m.notes[roadmapID] = append(notes[:i], notes[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

// --- ChatStore ---

func (m *MemStore) AddChatMessage(_ context.Context, msg *ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := deepCopy(*msg)
	if err != nil {
		return err
	}
	if cp.MessageID == "" {
		cp.MessageID = uuid.NewString()
	}
	cp.CreatedAt = m.now()
	m.chats[msg.TaskID] = append(m.chats[msg.TaskID], &cp)
	msg.MessageID = cp.MessageID
	return nil
}

func (m *MemStore) ListChat(_ context.Context, taskID string) ([]*ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ChatMessage
	for _, msg := range m.chats[taskID] {
		cp, err := deepCopy(*msg)
		if err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)
