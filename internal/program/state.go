package program

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
)

// Kind tags the layout stored in an account.
type Kind uint8

const (
	KindProfile      Kind = 1
	KindDirectory    Kind = 2
	KindConversation Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindProfile:
		return "profile"
	case KindDirectory:
		return "directory"
	case KindConversation:
		return "conversation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	MaxDisplayNameLen = 32
	MaxAvatarLen      = 128

	ProfileSize      = 2 + identity.Size + 1 + MaxDisplayNameLen + 1 + MaxAvatarLen
	entrySize        = identity.Size + 2
	directoryHeader  = 2 + identity.Size + 2 + 2
	ConversationSize = 2 + 3*identity.Size + 8
)

// DirectorySize is the fixed account footprint of a directory with the given
// capacity, independent of how many entries are in use.
func DirectorySize(capacity uint16) int {
	return directoryHeader + int(capacity)*entrySize
}

// Account is a raw ledger account.
type Account struct {
	Address address.Address `json:"address"`
	Kind    Kind            `json:"kind"`
	Data    []byte          `json:"data"`
}

// Profile is the identity registry record.
type Profile struct {
	Version     uint8
	Owner       identity.Identity
	DisplayName string
	AvatarURI   string
}

// PeerState is the state of one side of a relationship.
type PeerState uint8

const (
	StatePending  PeerState = 1
	StateActive   PeerState = 2
	StateRejected PeerState = 3
)

func (s PeerState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateRejected:
		return "Rejected"
	}
	return fmt.Sprintf("PeerState(%d)", uint8(s))
}

// Direction records who initiated the relationship, from the owner's view.
type Direction uint8

const (
	Outgoing Direction = 1
	Incoming Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "Outgoing"
	case Incoming:
		return "Incoming"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func (d Direction) Opposite() Direction {
	if d == Outgoing {
		return Incoming
	}
	return Outgoing
}

type PeerEntry struct {
	Peer      identity.Identity
	State     PeerState
	Direction Direction
}

// Directory is a bounded, ordered list of peer relationships. Capacity is set
// at creation and never changes.
type Directory struct {
	Version  uint8
	Owner    identity.Identity
	Capacity uint16
	Entries  []PeerEntry
}

// Find returns the index of peer's entry or -1.
func (d *Directory) Find(peer identity.Identity) int {
	for i := range d.Entries {
		if d.Entries[i].Peer == peer {
			return i
		}
	}
	return -1
}

func (d *Directory) Full() bool {
	return len(d.Entries) >= int(d.Capacity)
}

// Append adds e, rejecting duplicates and overflow.
func (d *Directory) Append(e PeerEntry) error {
	if d.Find(e.Peer) >= 0 {
		return ErrDuplicatePeer
	}
	if d.Full() {
		return ErrCapacityExceeded
	}
	d.Entries = append(d.Entries, e)
	return nil
}

// Conversation is the metadata record stored at a conversation handle.
type Conversation struct {
	Version      uint8
	ParticipantA identity.Identity
	ParticipantB identity.Identity
	Initiator    identity.Identity
	CreatedAt    int64
}

// HasParticipant reports whether id is one of the two parties.
func (c *Conversation) HasParticipant(id identity.Identity) bool {
	return c.ParticipantA == id || c.ParticipantB == id
}

func (p *Profile) MarshalBinary() ([]byte, error) {
	if err := validateText("display name", p.DisplayName, MaxDisplayNameLen, false); err != nil {
		return nil, err
	}
	if err := validateText("avatar", p.AvatarURI, MaxAvatarLen, true); err != nil {
		return nil, err
	}
	buf := make([]byte, ProfileSize)
	buf[0] = byte(KindProfile)
	buf[1] = p.Version
	off := 2
	off += copy(buf[off:], p.Owner[:])
	buf[off] = byte(len(p.DisplayName))
	copy(buf[off+1:], p.DisplayName)
	off += 1 + MaxDisplayNameLen
	buf[off] = byte(len(p.AvatarURI))
	copy(buf[off+1:], p.AvatarURI)
	return buf, nil
}

func DecodeProfile(data []byte) (*Profile, error) {
	if len(data) != ProfileSize || Kind(data[0]) != KindProfile {
		return nil, fmt.Errorf("%w: not a profile account", ErrInvalidAccount)
	}
	p := &Profile{Version: data[1]}
	off := 2
	off += copy(p.Owner[:], data[off:])

	n := int(data[off])
	if n > MaxDisplayNameLen {
		return nil, fmt.Errorf("%w: corrupt profile", ErrInvalidAccount)
	}
	p.DisplayName = string(data[off+1 : off+1+n])
	off += 1 + MaxDisplayNameLen

	n = int(data[off])
	if n > MaxAvatarLen {
		return nil, fmt.Errorf("%w: corrupt profile", ErrInvalidAccount)
	}
	p.AvatarURI = string(data[off+1 : off+1+n])
	return p, nil
}

func (d *Directory) MarshalBinary() ([]byte, error) {
	if len(d.Entries) > int(d.Capacity) {
		return nil, ErrCapacityExceeded
	}
	buf := make([]byte, DirectorySize(d.Capacity))
	buf[0] = byte(KindDirectory)
	buf[1] = d.Version
	off := 2
	off += copy(buf[off:], d.Owner[:])
	binary.LittleEndian.PutUint16(buf[off:], d.Capacity)
	binary.LittleEndian.PutUint16(buf[off+2:], uint16(len(d.Entries)))
	off += 4
	for _, e := range d.Entries {
		off += copy(buf[off:], e.Peer[:])
		buf[off] = byte(e.State)
		buf[off+1] = byte(e.Direction)
		off += 2
	}
	return buf, nil
}

func DecodeDirectory(data []byte) (*Directory, error) {
	if len(data) < directoryHeader || Kind(data[0]) != KindDirectory {
		return nil, fmt.Errorf("%w: not a directory account", ErrInvalidAccount)
	}
	d := &Directory{Version: data[1]}
	off := 2
	off += copy(d.Owner[:], data[off:])
	d.Capacity = binary.LittleEndian.Uint16(data[off:])
	count := int(binary.LittleEndian.Uint16(data[off+2:]))
	off += 4

	if len(data) != DirectorySize(d.Capacity) || count > int(d.Capacity) {
		return nil, fmt.Errorf("%w: corrupt directory", ErrInvalidAccount)
	}
	d.Entries = make([]PeerEntry, count)
	for i := range d.Entries {
		off += copy(d.Entries[i].Peer[:], data[off:])
		d.Entries[i].State = PeerState(data[off])
		d.Entries[i].Direction = Direction(data[off+1])
		off += 2
	}
	return d, nil
}

func (c *Conversation) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ConversationSize)
	buf[0] = byte(KindConversation)
	buf[1] = c.Version
	off := 2
	off += copy(buf[off:], c.ParticipantA[:])
	off += copy(buf[off:], c.ParticipantB[:])
	off += copy(buf[off:], c.Initiator[:])
	binary.LittleEndian.PutUint64(buf[off:], uint64(c.CreatedAt))
	return buf, nil
}

func DecodeConversation(data []byte) (*Conversation, error) {
	if len(data) != ConversationSize || Kind(data[0]) != KindConversation {
		return nil, fmt.Errorf("%w: not a conversation account", ErrInvalidAccount)
	}
	c := &Conversation{Version: data[1]}
	off := 2
	off += copy(c.ParticipantA[:], data[off:])
	off += copy(c.ParticipantB[:], data[off:])
	off += copy(c.Initiator[:], data[off:])
	c.CreatedAt = int64(binary.LittleEndian.Uint64(data[off:]))
	return c, nil
}

func validateText(field, s string, max int, allowEmpty bool) error {
	switch {
	case s == "" && !allowEmpty:
		return fmt.Errorf("%w: %s is empty", ErrValidation, field)
	case len(s) > max:
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrValidation, field, len(s), max)
	case !utf8.ValidString(s):
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrValidation, field)
	}
	return nil
}
