package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vision-inspector/internal/apperrors"
	"vision-inspector/internal/logger"
)

// ToolDocument — переносимое описание инструмента.
type ToolDocument struct {
	Kind        string         `json:"kind" yaml:"kind"`
	ToolID      int            `json:"tool_id" yaml:"tool_id"`
	DisplayName string         `json:"display_name" yaml:"display_name"`
	Config      map[string]any `json:"config" yaml:"config"`
}

// ConnectionDocument — ребро графа.
type ConnectionDocument struct {
	SourceID  int  `json:"source_id" yaml:"source_id"`
	TargetID  int  `json:"target_id" yaml:"target_id"`
	IsPrimary bool `json:"is_primary" yaml:"is_primary"`
}

// Document — переносимое представление Job. Время в секундах.
type Document struct {
	Name          string               `json:"name" yaml:"name"`
	Description   string               `json:"description" yaml:"description"`
	Tools         []ToolDocument       `json:"tools" yaml:"tools"`
	Connections   []ConnectionDocument `json:"connections" yaml:"connections"`
	Status        string               `json:"status" yaml:"status"`
	LastRunTime   float64              `json:"last_run_time" yaml:"last_run_time"`
	ExecutionTime float64              `json:"execution_time" yaml:"execution_time"`
}

// ToDocument строит документ. Рёбра перечисляются в порядке списка инструментов.
func (j *Job) ToDocument() Document {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := Document{
		Name:          j.name,
		Description:   j.description,
		Tools:         make([]ToolDocument, 0, len(j.tools)),
		Connections:   []ConnectionDocument{},
		Status:        string(j.status),
		ExecutionTime: j.executionTime.Seconds(),
	}
	if !j.lastRunTime.IsZero() {
		doc.LastRunTime = float64(j.lastRunTime.UnixNano()) / float64(time.Second)
	}
	for _, t := range j.tools {
		doc.Tools = append(doc.Tools, ToolDocument{
			Kind:        t.Kind(),
			ToolID:      t.ID(),
			DisplayName: t.DisplayName(),
			Config:      t.Config().ToMap(),
		})
	}
	for _, t := range j.tools {
		src := t.ID()
		for _, dst := range j.outputs[src].sorted() {
			p, ok := j.primary[dst]
			doc.Connections = append(doc.Connections, ConnectionDocument{
				SourceID:  src,
				TargetID:  dst,
				IsPrimary: ok && p == src,
			})
		}
	}
	return doc
}

// FromDocument восстанавливает Job через реестр. Пустой kind трактуется как GenericTool,
// неизвестный kind прерывает загрузку. Основные источники восстанавливаются после обычных рёбер.
func FromDocument(doc Document, registry *Registry) (*Job, error) {
	job := NewJob(doc.Name)
	job.description = doc.Description
	log := job.log

	for i, td := range doc.Tools {
		kind := td.Kind
		if kind == "" {
			kind = KindGeneric
		}
		tool, err := registry.Create(kind, td.Config)
		if tool == nil {
			_ = job.Close()
			if err == nil {
				err = apperrors.Configuration("factory for %q returned no tool", kind)
			}
			return nil, apperrors.Configuration("tool #%d (%s) cannot be created", i, kind).WithCause(err)
		}
		if err != nil {
			log.Warn("tool config partially rejected", logger.Fields(
				logger.FieldTool, kind, "tool_id", td.ToolID, logger.FieldError, err.Error()))
		}
		tool.SetID(td.ToolID)
		if td.DisplayName != "" {
			tool.SetDisplayName(td.DisplayName)
		}
		job.AddTool(tool)
	}

	for _, c := range doc.Connections {
		if c.IsPrimary {
			continue
		}
		if err := job.Connect(c.SourceID, c.TargetID); err != nil {
			_ = job.Close()
			return nil, apperrors.Configuration("connection %d->%d", c.SourceID, c.TargetID).WithCause(err)
		}
	}
	for _, c := range doc.Connections {
		if !c.IsPrimary {
			continue
		}
		if err := job.SetPrimarySource(c.SourceID, c.TargetID); err != nil {
			_ = job.Close()
			return nil, apperrors.Configuration("primary connection %d->%d", c.SourceID, c.TargetID).WithCause(err)
		}
	}

	switch JobStatus(doc.Status) {
	case JobReady, JobCompleted, JobFailed:
		job.status = JobStatus(doc.Status)
	}
	if doc.LastRunTime > 0 {
		job.lastRunTime = time.Unix(0, int64(doc.LastRunTime*float64(time.Second)))
	}
	job.executionTime = time.Duration(doc.ExecutionTime * float64(time.Second))
	return job, nil
}

// MarshalDocument кодирует документ; формат выбирается по расширению (.yaml/.yml или JSON).
func MarshalDocument(doc Document, path string) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalDocument декодирует документ; формат выбирается по расширению.
func UnmarshalDocument(data []byte, path string) (Document, error) {
	var doc Document
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, apperrors.Configuration("decode job document %s", path).WithCause(err)
	}
	return doc, nil
}

// LoadDocumentFile читает документ задания из файла.
func LoadDocumentFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, apperrors.Configuration("read job document %s", path).WithCause(err)
	}
	return UnmarshalDocument(data, path)
}

// SaveDocumentFile записывает документ задания в файл.
func SaveDocumentFile(path string, doc Document) error {
	data, err := MarshalDocument(doc, path)
	if err != nil {
		return apperrors.Configuration("encode job document").WithCause(err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
