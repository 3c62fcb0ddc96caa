package pipeline

import (
	"sort"
	"sync"
	"time"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/logger"
)

// JobStatus — состояние последнего выполнения.
type JobStatus string

const (
	JobReady     JobStatus = "ready"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type idSet map[int]struct{}

func (s idSet) sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Job — именованный упорядоченный набор инструментов и рёбер между ними.
// Рёбра хранятся по id, поэтому изменения топологии не затрагивают сами инструменты.
type Job struct {
	mu sync.Mutex

	name        string
	description string

	tools   []Tool
	nextID  int
	inputs  map[int]idSet
	outputs map[int]idSet
	primary map[int]int

	startIDs []int
	endIDs   []int

	status        JobStatus
	lastRunTime   time.Time
	executionTime time.Duration

	log *logger.Logger
}

// NewJob создаёт пустой Job.
func NewJob(name string) *Job {
	return &Job{
		name:    name,
		inputs:  make(map[int]idSet),
		outputs: make(map[int]idSet),
		primary: make(map[int]int),
		status:  JobReady,
		log:     logger.WithComponent("pipeline"),
	}
}

// SetLogger заменяет логгер задания.
func (j *Job) SetLogger(l *logger.Logger) {
	j.mu.Lock()
	j.log = l
	j.mu.Unlock()
}

func (j *Job) Name() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.name
}

func (j *Job) SetName(name string) {
	j.mu.Lock()
	j.name = name
	j.mu.Unlock()
}

func (j *Job) Description() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.description
}

func (j *Job) SetDescription(d string) {
	j.mu.Lock()
	j.description = d
	j.mu.Unlock()
}

// Status возвращает состояние последнего выполнения.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// LastRunTime — момент начала последнего выполнения.
func (j *Job) LastRunTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRunTime
}

// ExecutionTime — длительность последнего выполнения.
func (j *Job) ExecutionTime() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.executionTime
}

// AddTool добавляет инструмент в конец списка, назначая id при отсутствии.
func (j *Job) AddTool(t Tool) Tool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.addToolLocked(t)
	j.rebuildLocked()
	return t
}

// AddToolWithSource добавляет инструмент и соединяет source → tool как основной вход.
// Если source неизвестен, инструмент всё равно добавляется, а возвращается ошибка.
func (j *Job) AddToolWithSource(t Tool, sourceID int) (Tool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.addToolLocked(t)
	defer j.rebuildLocked()

	if j.indexLocked(sourceID) < 0 {
		j.log.Warn("primary source not found, tool added without connection",
			logger.Fields("source_id", sourceID, logger.FieldTool, t.DisplayName()))
		return t, apperrors.NotFound("primary source tool", sourceID)
	}
	j.connectLocked(sourceID, t.ID())
	j.primary[t.ID()] = sourceID
	return t, nil
}

func (j *Job) addToolLocked(t Tool) {
	id := t.ID()
	if id < 0 || j.indexLocked(id) >= 0 {
		if id >= 0 {
			j.log.Warn("duplicate tool id, assigning a new one",
				logger.Fields("tool_id", id, logger.FieldTool, t.DisplayName()))
		}
		id = j.nextID
		t.SetID(id)
	}
	if id >= j.nextID {
		j.nextID = id + 1
	}
	j.tools = append(j.tools, t)
	j.inputs[id] = make(idSet)
	j.outputs[id] = make(idSet)
}

// RemoveTool удаляет инструмент по позиции и стирает все ссылки на него.
func (j *Job) RemoveTool(index int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.tools) {
		return apperrors.InvalidInput("index", "out of range")
	}
	t := j.tools[index]
	id := t.ID()
	j.tools = append(j.tools[:index], j.tools[index+1:]...)

	for other := range j.inputs[id] {
		delete(j.outputs[other], id)
	}
	for other := range j.outputs[id] {
		delete(j.inputs[other], id)
	}
	delete(j.inputs, id)
	delete(j.outputs, id)
	delete(j.primary, id)
	for target, src := range j.primary {
		if src == id {
			delete(j.primary, target)
		}
	}
	j.rebuildLocked()

	if c, ok := t.(Closer); ok {
		if err := c.Close(); err != nil {
			j.log.Warn("tool close failed", logger.ErrorFields("remove_tool", err))
		}
	}
	return nil
}

// MoveTool переставляет инструмент в списке; топология не меняется.
func (j *Job) MoveTool(from, to int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := len(j.tools)
	if from < 0 || from >= n || to < 0 || to >= n {
		return apperrors.InvalidInput("index", "out of range")
	}
	t := j.tools[from]
	j.tools = append(j.tools[:from], j.tools[from+1:]...)
	j.tools = append(j.tools[:to], append([]Tool{t}, j.tools[to:]...)...)
	j.rebuildLocked()
	return nil
}

// Connect добавляет ребро source → target. Повторный вызов ничего не меняет.
func (j *Job) Connect(sourceID, targetID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkEdgeLocked(sourceID, targetID); err != nil {
		return err
	}
	j.connectLocked(sourceID, targetID)
	j.rebuildLocked()
	return nil
}

// Disconnect удаляет ребро и, если source был основным входом target, сбрасывает его.
func (j *Job) Disconnect(sourceID, targetID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkEdgeLocked(sourceID, targetID); err != nil {
		return err
	}
	delete(j.outputs[sourceID], targetID)
	delete(j.inputs[targetID], sourceID)
	if src, ok := j.primary[targetID]; ok && src == sourceID {
		delete(j.primary, targetID)
	}
	j.rebuildLocked()
	return nil
}

// SetPrimarySource создаёт ребро при необходимости и делает source основным входом target.
func (j *Job) SetPrimarySource(sourceID, targetID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkEdgeLocked(sourceID, targetID); err != nil {
		return err
	}
	j.connectLocked(sourceID, targetID)
	j.primary[targetID] = sourceID
	j.rebuildLocked()
	return nil
}

func (j *Job) checkEdgeLocked(sourceID, targetID int) error {
	if sourceID == targetID {
		return apperrors.InvalidInput("connection", "self-loop is not allowed")
	}
	if j.indexLocked(sourceID) < 0 {
		return apperrors.NotFound("tool", sourceID)
	}
	if j.indexLocked(targetID) < 0 {
		return apperrors.NotFound("tool", targetID)
	}
	return nil
}

func (j *Job) connectLocked(sourceID, targetID int) {
	j.outputs[sourceID][targetID] = struct{}{}
	j.inputs[targetID][sourceID] = struct{}{}
}

func (j *Job) indexLocked(id int) int {
	for i, t := range j.tools {
		if t.ID() == id {
			return i
		}
	}
	return -1
}

func (j *Job) toolLocked(id int) Tool {
	if i := j.indexLocked(id); i >= 0 {
		return j.tools[i]
	}
	return nil
}

// rebuildLocked пересчитывает стартовые и конечные инструменты в порядке списка.
func (j *Job) rebuildLocked() {
	j.startIDs = j.startIDs[:0]
	j.endIDs = j.endIDs[:0]
	for _, t := range j.tools {
		id := t.ID()
		if len(j.inputs[id]) == 0 {
			j.startIDs = append(j.startIDs, id)
		}
		if len(j.outputs[id]) == 0 {
			j.endIDs = append(j.endIDs, id)
		}
	}
}

// Tools возвращает копию списка инструментов.
func (j *Job) Tools() []Tool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Tool(nil), j.tools...)
}

// Len возвращает число инструментов.
func (j *Job) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.tools)
}

// Tool возвращает инструмент по id.
func (j *Job) Tool(id int) (Tool, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t := j.toolLocked(id)
	return t, t != nil
}

// Inputs возвращает отсортированные id входов инструмента.
func (j *Job) Inputs(id int) []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inputs[id].sorted()
}

// Outputs возвращает отсортированные id выходов инструмента.
func (j *Job) Outputs(id int) []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputs[id].sorted()
}

// PrimarySource возвращает id основного входа инструмента.
func (j *Job) PrimarySource(id int) (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	src, ok := j.primary[id]
	return src, ok
}

// StartTools — инструменты без входов, в порядке списка.
func (j *Job) StartTools() []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]int(nil), j.startIDs...)
}

// EndTools — инструменты без выходов, в порядке списка.
func (j *Job) EndTools() []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]int(nil), j.endIDs...)
}

// HasKind сообщает, есть ли в задании инструмент указанного вида.
func (j *Job) HasKind(kind string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, t := range j.tools {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

// Validate проверяет граф на циклы алгоритмом Кана.
func (j *Job) Validate() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.validateLocked()
}

func (j *Job) validateLocked() error {
	inDegree := make(map[int]int, len(j.tools))
	var queue []int
	for _, t := range j.tools {
		id := t.ID()
		inDegree[id] = len(j.inputs[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, out := range j.outputs[id].sorted() {
			inDegree[out]--
			if inDegree[out] == 0 {
				queue = append(queue, out)
			}
		}
	}
	if visited != len(j.tools) {
		return apperrors.New(apperrors.CodeCycleDetected,
			"cycle detected, processed %d of %d tools", visited, len(j.tools))
	}
	return nil
}

// Close освобождает ресурсы всех инструментов.
func (j *Job) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for _, t := range j.tools {
		if c, ok := t.(Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
