package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SharedFile — анонс файла, доступного для передачи вне координатора.
// Метаданные (name, size, type, ...) непрозрачны для координатора и
// при сериализации объединяются с id и timestamp в один JSON-объект.
// После создания запись не изменяется.
type SharedFile struct {
	// ID — UUID, выдаётся сервером
	ID string
	// Timestamp — время создания записи
	Timestamp time.Time
	// Metadata — поля fileInfo от клиента как есть
	Metadata map[string]json.RawMessage
}

// Зарезервированные ключи, которые сервер перезаписывает поверх метаданных.
const (
	fileKeyID        = "id"
	fileKeyTimestamp = "timestamp"
	fileKeyName      = "name"
)

// MarshalJSON сериализует файл плоским объектом: {...fileInfo, id, timestamp}.
func (f SharedFile) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.Metadata)+2)
	for k, v := range f.Metadata {
		out[k] = v
	}

	id, err := json.Marshal(f.ID)
	if err != nil {
		return nil, err
	}
	ts, err := json.Marshal(f.Timestamp)
	if err != nil {
		return nil, err
	}
	out[fileKeyID] = id
	out[fileKeyTimestamp] = ts

	return json.Marshal(out)
}

// UnmarshalJSON разбирает плоский объект обратно в ID, Timestamp и Metadata.
func (f *SharedFile) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var parsed SharedFile
	if v, ok := raw[fileKeyID]; ok {
		if err := json.Unmarshal(v, &parsed.ID); err != nil {
			return fmt.Errorf("поле id: %w", err)
		}
		delete(raw, fileKeyID)
	}
	if v, ok := raw[fileKeyTimestamp]; ok {
		if err := json.Unmarshal(v, &parsed.Timestamp); err != nil {
			return fmt.Errorf("поле timestamp: %w", err)
		}
		delete(raw, fileKeyTimestamp)
	}
	parsed.Metadata = raw

	*f = parsed
	return nil
}

// Clone возвращает глубокую копию записи.
func (f SharedFile) Clone() SharedFile {
	out := SharedFile{ID: f.ID, Timestamp: f.Timestamp}
	if f.Metadata != nil {
		out.Metadata = make(map[string]json.RawMessage, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Name возвращает поле name из метаданных, если это строка.
// Используется только для логов.
func (f SharedFile) Name() string {
	v, ok := f.Metadata[fileKeyName]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(v, &name); err != nil {
		return ""
	}
	return name
}
