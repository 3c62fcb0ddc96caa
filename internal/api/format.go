package telegram

import (
	"fmt"
	"sort"
	"strings"

	app "vision-inspector/internal/application"
	"vision-inspector/internal/domain/entity"
)

// FormatStatus — сводка для /status.
func FormatStatus(st app.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📷 Режим: %s\n", st.Mode)
	fmt.Fprintf(&sb, "🧩 Задание: %s (%s)\n", st.Job, st.JobStatus)
	fmt.Fprintf(&sb, "📋 Очередь: %d\n", st.QueueLen)
	fmt.Fprintf(&sb, "✅ OK: %d  ❌ NG: %d  ⚠️ ошибок: %d\n", st.Inspection.OK, st.Inspection.NG, st.Inspection.Failures)
	fmt.Fprintf(&sb, "⚙️ Запусков: %d, пропущено кадров: %d\n", st.Engine.Executions, st.Engine.Skipped)
	fmt.Fprintf(&sb, "🎯 Триггеров: %d, снято: %d, таймаутов: %d", st.Trigger.Received, st.Trigger.Succeeded, st.Trigger.Timeouts)
	if st.Trigger.Succeeded > 0 {
		fmt.Fprintf(&sb, ", задержка %d/%d/%d мс",
			st.Trigger.MinLatency.Milliseconds(),
			st.Trigger.MeanLatency.Milliseconds(),
			st.Trigger.MaxLatency.Milliseconds())
	}
	if st.LastDone != nil {
		fmt.Fprintf(&sb, "\n🏁 Последний: #%d %s", st.LastDone.FrameID, st.LastDone.FrameStatus)
	}
	return sb.String()
}

// FormatQueue — последние limit строк очереди.
func FormatQueue(items []entity.ResultItem, limit int) string {
	if len(items) == 0 {
		return "📋 Очередь пуста."
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	var sb strings.Builder
	sb.WriteString("📋 frame | in | out | status | done")
	for _, it := range items {
		fmt.Fprintf(&sb, "\n#%d | %s | %s | %s | %s",
			it.FrameID, sensor(it.SensorIDIn), sensor(it.SensorIDOut), it.FrameStatus, it.CompletionStatus)
	}
	return sb.String()
}

// FormatAlert — оповещение о браке.
func FormatAlert(item entity.ResultItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "❌ Брак: кадр #%d", item.FrameID)
	if item.SensorIDIn != nil && item.SensorIDOut != nil {
		fmt.Fprintf(&sb, " (датчики %d → %d)", *item.SensorIDIn, *item.SensorIDOut)
	}
	summary, ok := item.Detections.(map[string]any)
	if !ok {
		return sb.String()
	}
	if msg, ok := summary["error"]; ok {
		fmt.Fprintf(&sb, "\n⚠️ Ошибка задания: %v", msg)
	}
	if counts, ok := summary["class_counts"].(map[string]int); ok && len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s×%d", name, counts[name]))
		}
		fmt.Fprintf(&sb, "\n🔍 Найдено: %s", strings.Join(parts, ", "))
	}
	if path, ok := summary["saved_path"].(string); ok && path != "" {
		fmt.Fprintf(&sb, "\n💾 %s", path)
	}
	return sb.String()
}

func sensor(id *int) string {
	if id == nil {
		return "—"
	}
	return fmt.Sprint(*id)
}
