package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/sharepool/internal/domain/model"
)

// fixedClock возвращает управляемые тестом часы.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

// TestRegisterDevice_ValidNames проверяет успешную регистрацию и уникальность ID.
func TestRegisterDevice_ValidNames(t *testing.T) {
	r := New()

	names := []string{"Alice", "Bob", "  Карл  ", "abc", "Alice"}
	seen := make(map[string]bool)

	for _, name := range names {
		d, err := r.RegisterDevice(name, "10.0.0.1")
		if err != nil {
			t.Fatalf("RegisterDevice(%q): неожиданная ошибка: %v", name, err)
		}
		if seen[d.ID] {
			t.Fatalf("RegisterDevice(%q): повторный ID %s", name, d.ID)
		}
		seen[d.ID] = true

		if !d.IsOnline {
			t.Errorf("RegisterDevice(%q): ожидался isOnline=true", name)
		}
		if d.Port < model.PortMin || d.Port > model.PortMax {
			t.Errorf("RegisterDevice(%q): порт %d вне диапазона", name, d.Port)
		}
	}

	if got := r.Stats().DeviceCount; got != len(names) {
		t.Errorf("DeviceCount = %d, ожидалось %d", got, len(names))
	}
}

// TestRegisterDevice_TrimsName проверяет, что имя сохраняется без пробелов по краям.
func TestRegisterDevice_TrimsName(t *testing.T) {
	r := New()

	d, err := r.RegisterDevice("  Bob  ", "")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if d.Name != "Bob" {
		t.Errorf("Name = %q, ожидалось %q", d.Name, "Bob")
	}
	if d.IPAddress != model.UnknownAddress {
		t.Errorf("IPAddress = %q, ожидалось %q", d.IPAddress, model.UnknownAddress)
	}
}

// TestRegisterDevice_InvalidNames проверяет отказ для коротких имён без изменения реестра.
func TestRegisterDevice_InvalidNames(t *testing.T) {
	r := New()

	tests := []string{"", "   ", "ab", " a ", "\t\n", "яя"}
	for _, name := range tests {
		_, err := r.RegisterDevice(name, "10.0.0.1")
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("RegisterDevice(%q): ожидалась ErrInvalidName, получено %v", name, err)
		}
	}

	if got := len(r.ListDevices()); got != 0 {
		t.Errorf("реестр изменился: %d устройств", got)
	}
	if r.Version() != 0 {
		t.Errorf("Version = %d, ожидалось 0", r.Version())
	}
}

// TestRegisterDevice_NameLengthInRunes проверяет, что длина имени считается
// в рунах: символ вне BMP занимает одну позицию.
func TestRegisterDevice_NameLengthInRunes(t *testing.T) {
	r := New()

	if _, err := r.RegisterDevice("a😀", ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf(`RegisterDevice("a😀"): ожидалась ErrInvalidName, получено %v`, err)
	}
	if _, err := r.RegisterDevice("😀😀", ""); !errors.Is(err, ErrInvalidName) {
		t.Errorf(`RegisterDevice("😀😀"): ожидалась ErrInvalidName, получено %v`, err)
	}

	d, err := r.RegisterDevice("ab😀", "")
	if err != nil {
		t.Fatalf(`RegisterDevice("ab😀"): неожиданная ошибка: %v`, err)
	}
	if d.Name != "ab😀" {
		t.Errorf("Name = %q, ожидалось %q", d.Name, "ab😀")
	}
	if got := len(r.ListDevices()); got != 1 {
		t.Errorf("ожидалось 1 устройство, получено %d", got)
	}
}

// TestListDevices_AfterRegister проверяет содержимое списка после регистрации Alice.
func TestListDevices_AfterRegister(t *testing.T) {
	r := New()

	if _, err := r.RegisterDevice("Alice", "10.0.0.2"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	devices := r.ListDevices()
	if len(devices) != 1 {
		t.Fatalf("ожидалось 1 устройство, получено %d", len(devices))
	}
	if devices[0].Name != "Alice" || !devices[0].IsOnline {
		t.Errorf("неожиданная запись: %+v", devices[0])
	}
}

// TestListDevices_ReturnsCopy проверяет, что изменения копии не влияют на реестр.
func TestListDevices_ReturnsCopy(t *testing.T) {
	r := New()
	d, _ := r.RegisterDevice("Alice", "10.0.0.2")

	devices := r.ListDevices()
	devices[0].IsOnline = false
	devices[0].Name = "Mallory"

	got, ok := r.GetDevice(d.ID)
	if !ok {
		t.Fatal("устройство не найдено")
	}
	if !got.IsOnline || got.Name != "Alice" {
		t.Errorf("реестр изменён через копию: %+v", got)
	}
}

// TestListDevices_InsertionOrder проверяет порядок выдачи.
func TestListDevices_InsertionOrder(t *testing.T) {
	r := New()
	want := []string{"first", "second", "third", "fourth"}
	for _, name := range want {
		if _, err := r.RegisterDevice(name, ""); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}

	devices := r.ListDevices()
	for i, d := range devices {
		if d.Name != want[i] {
			t.Errorf("devices[%d] = %q, ожидалось %q", i, d.Name, want[i])
		}
	}
}

// TestMarkOffline проверяет NotFound и идемпотентность.
func TestMarkOffline(t *testing.T) {
	clock, advance := fixedClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	r := New(WithClock(clock))

	if _, err := r.MarkOffline("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}

	d, _ := r.RegisterDevice("Alice", "")

	advance(time.Minute)
	first, err := r.MarkOffline(d.ID)
	if err != nil {
		t.Fatalf("MarkOffline: неожиданная ошибка: %v", err)
	}
	if first.IsOnline {
		t.Error("ожидался isOnline=false после первого вызова")
	}
	if !first.LastSeen.After(d.LastSeen) {
		t.Errorf("lastSeen не обновлён: %v", first.LastSeen)
	}

	advance(time.Minute)
	second, err := r.MarkOffline(d.ID)
	if err != nil {
		t.Fatalf("повторный MarkOffline: неожиданная ошибка: %v", err)
	}
	if second.IsOnline {
		t.Error("ожидался isOnline=false после второго вызова")
	}
	if !second.LastSeen.After(first.LastSeen) {
		t.Errorf("lastSeen не обновлён повторно: %v", second.LastSeen)
	}

	if got := len(r.ListDevices()); got != 1 {
		t.Errorf("ожидалось 1 устройство, получено %d", got)
	}
}

// TestShareFile проверяет анонс и выдачу через ListFiles.
func TestShareFile(t *testing.T) {
	r := New()

	file, err := r.ShareFile(ShareRequest{
		FileInfo: map[string]json.RawMessage{
			"name": json.RawMessage(`"photo.jpg"`),
			"size": json.RawMessage(`2048`),
		},
		PeerIDs:  []string{"peer-1"},
		SenderID: "sender-1",
	})
	if err != nil {
		t.Fatalf("ShareFile: неожиданная ошибка: %v", err)
	}
	if file.ID == "" {
		t.Fatal("ожидался непустой ID")
	}
	if file.Timestamp.IsZero() {
		t.Error("ожидался timestamp")
	}

	files := r.ListFiles()
	if len(files) != 1 || files[0].ID != file.ID {
		t.Fatalf("файл не найден в ListFiles: %+v", files)
	}
	if files[0].Name() != "photo.jpg" {
		t.Errorf("Name() = %q, ожидалось photo.jpg", files[0].Name())
	}
}

// TestShareFile_EmptyPeerIDsIsPresent проверяет, что пустой список peerIds допустим.
func TestShareFile_EmptyPeerIDsIsPresent(t *testing.T) {
	r := New()

	_, err := r.ShareFile(ShareRequest{
		FileInfo: map[string]json.RawMessage{},
		PeerIDs:  []string{},
		SenderID: "sender-1",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}

// TestShareFile_MissingFields проверяет отказ без изменения набора файлов.
func TestShareFile_MissingFields(t *testing.T) {
	info := map[string]json.RawMessage{"name": json.RawMessage(`"a.txt"`)}

	tests := []struct {
		name string
		req  ShareRequest
	}{
		{"без fileInfo", ShareRequest{PeerIDs: []string{"p"}, SenderID: "s"}},
		{"без peerIds", ShareRequest{FileInfo: info, SenderID: "s"}},
		{"без senderId", ShareRequest{FileInfo: info, PeerIDs: []string{"p"}}},
		{"пустой запрос", ShareRequest{}},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ShareFile(tt.req)
			if !errors.Is(err, ErrMissingFields) {
				t.Errorf("ожидалась ErrMissingFields, получено %v", err)
			}
		})
	}

	if got := r.Stats().FileCount; got != 0 {
		t.Errorf("FileCount = %d, ожидалось 0", got)
	}
}

// TestShareFile_Immutable проверяет, что запись не меняется через входные данные и копии.
func TestShareFile_Immutable(t *testing.T) {
	r := New()
	info := map[string]json.RawMessage{"name": json.RawMessage(`"a.txt"`)}

	file, err := r.ShareFile(ShareRequest{FileInfo: info, PeerIDs: []string{}, SenderID: "s"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	info["name"] = json.RawMessage(`"b.txt"`)
	file.Metadata["name"][1] = 'z'
	listed := r.ListFiles()
	listed[0].Metadata["extra"] = json.RawMessage(`1`)

	stored := r.ListFiles()[0]
	if stored.Name() != "a.txt" {
		t.Errorf("Name() = %q, запись изменена снаружи", stored.Name())
	}
	if _, ok := stored.Metadata["extra"]; ok {
		t.Error("метаданные изменены через копию ListFiles")
	}
}

// TestSnapshot_Version проверяет рост версии при мутациях.
func TestSnapshot_Version(t *testing.T) {
	r := New()

	v0 := r.Snapshot().Version
	d, _ := r.RegisterDevice("Alice", "")
	v1 := r.Snapshot().Version
	_, _ = r.MarkOffline(d.ID)
	_, _ = r.ShareFile(ShareRequest{FileInfo: map[string]json.RawMessage{}, PeerIDs: []string{}, SenderID: d.ID})
	snap := r.Snapshot()

	if !(v0 < v1 && v1 < snap.Version) {
		t.Errorf("версии не растут: %d, %d, %d", v0, v1, snap.Version)
	}
	if len(snap.Devices) != 1 || len(snap.Files) != 1 {
		t.Errorf("снимок: %d устройств, %d файлов", len(snap.Devices), len(snap.Files))
	}
}

// TestRegistry_Concurrent проверяет отсутствие потерянных обновлений.
func TestRegistry_Concurrent(t *testing.T) {
	r := New()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				d, err := r.RegisterDevice(fmt.Sprintf("device-%d-%d", w, i), "")
				if err != nil {
					t.Errorf("RegisterDevice: %v", err)
					return
				}
				_, _ = r.MarkOffline(d.ID)
				_, _ = r.ShareFile(ShareRequest{
					FileInfo: map[string]json.RawMessage{},
					PeerIDs:  []string{},
					SenderID: d.ID,
				})
				_ = r.ListDevices()
			}
		}(w)
	}
	wg.Wait()

	stats := r.Stats()
	if stats.DeviceCount != workers*perWorker {
		t.Errorf("DeviceCount = %d, ожидалось %d", stats.DeviceCount, workers*perWorker)
	}
	if stats.FileCount != workers*perWorker {
		t.Errorf("FileCount = %d, ожидалось %d", stats.FileCount, workers*perWorker)
	}
	for _, d := range r.ListDevices() {
		if d.IsOnline {
			t.Fatalf("устройство %s осталось online", d.ID)
		}
	}
}

// TestRegisterDevice_InjectedDeps проверяет подмену генераторов.
func TestRegisterDevice_InjectedDeps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r := New(
		WithClock(func() time.Time { return ts }),
		WithIDGenerator(func() string { return "fixed-id" }),
		WithPortPicker(func() int { return 9000 }),
	)

	d, err := r.RegisterDevice("Alice", "192.168.1.5")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if d.ID != "fixed-id" || d.Port != 9000 || !d.LastSeen.Equal(ts) {
		t.Errorf("неожиданная запись: %+v", d)
	}

	// Коллизия ID не должна перезаписывать существующую запись
	if _, err := r.RegisterDevice("Bob", ""); err == nil {
		t.Error("ожидалась ошибка при повторном ID")
	}
	if got := r.Stats().DeviceCount; got != 1 {
		t.Errorf("DeviceCount = %d, ожидалось 1", got)
	}
}
