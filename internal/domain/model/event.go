package model

import "encoding/json"

// Типы сообщений дуплексного канала (поле type).
const (
	// EventRegisterWS — клиент привязывает соединение к deviceId
	EventRegisterWS = "register_ws"
	// EventPoolStatus — снимок пула, ответ на register_ws
	EventPoolStatus = "pool_status"
	// EventMessage — ретранслируемое сообщение между устройствами
	EventMessage = "message"
	// EventPeerJoined — широковещательно: зарегистрировано устройство
	EventPeerJoined = "peer_joined"
	// EventPeerLeft — широковещательно: устройство отключилось
	EventPeerLeft = "peer_left"
	// EventFileShared — широковещательно: анонсирован файл
	EventFileShared = "file_shared"
)

// InboundMessage — входящее сообщение клиента.
// Поля from, message и timestamp ретранслируются без интерпретации.
type InboundMessage struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId,omitempty"`
	To        string          `json:"to,omitempty"`
	From      json.RawMessage `json:"from,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// PoolStatusEvent — полный снимок устройств и файлов.
type PoolStatusEvent struct {
	Type             string       `json:"type"`
	ConnectedDevices []Device     `json:"connectedDevices"`
	SharedFiles      []SharedFile `json:"sharedFiles"`
}

// MessageEvent — доставка ретранслированного сообщения адресату.
type MessageEvent struct {
	Type      string          `json:"type"`
	From      json.RawMessage `json:"from,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// PeerJoinedEvent — анонс нового устройства.
type PeerJoinedEvent struct {
	Type string `json:"type"`
	Peer Device `json:"peer"`
}

// PeerLeftEvent — анонс отключения устройства.
type PeerLeftEvent struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	Peer   Device `json:"peer"`
}

// FileSharedEvent — анонс нового файла.
type FileSharedEvent struct {
	Type string     `json:"type"`
	File SharedFile `json:"file"`
}

// NewPoolStatus собирает событие pool_status. Пустые срезы сериализуются как [].
func NewPoolStatus(devices []Device, files []SharedFile) PoolStatusEvent {
	if devices == nil {
		devices = []Device{}
	}
	if files == nil {
		files = []SharedFile{}
	}
	return PoolStatusEvent{
		Type:             EventPoolStatus,
		ConnectedDevices: devices,
		SharedFiles:      files,
	}
}
