// Package relay is the real-time message relay. A websocket connection
// authenticates by signing a server-issued challenge with its identity key,
// then joins conversation handles it participates in and exchanges opaque
// payloads with the other members of each handle.
package relay

import "github.com/mirokugang/mukon/internal/identity"

// Event types. Client to relay: authenticate, join, send, leave, health.
// Relay to client: challenge, ok, message, health, error.
const (
	TypeChallenge    = "challenge"
	TypeAuthenticate = "authenticate"
	TypeJoin         = "join"
	TypeSend         = "send"
	TypeLeave        = "leave"
	TypeHealth       = "health"
	TypeMessage      = "message"
	TypeOK           = "ok"
	TypeError        = "error"
)

// Event is the single JSON object exchanged in both directions; Type selects
// which of the other fields are meaningful.
type Event struct {
	Type string `json:"type"`
	// Ref echoes a client-chosen id so replies can be matched to requests.
	Ref string `json:"ref,omitempty"`

	Challenge string `json:"challenge,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Signature []byte `json:"signature,omitempty"`

	Handle  string `json:"handle,omitempty"`
	Peer    string `json:"peer,omitempty"`
	From    string `json:"from,omitempty"`
	Payload []byte `json:"payload,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	Health *Health `json:"health,omitempty"`
}

// Health reports relay liveness. It is the body of GET /health and the
// payload of a health reply; zero counts are always encoded.
type Health struct {
	Status        string `json:"status"`
	Sessions      int    `json:"sessions"`
	Conversations int    `json:"conversations"`
}

// authDomain prefixes the challenge in the signed authentication message.
const authDomain = "mukon:relay-auth:v1:"

// AuthMessage is the byte string a client signs to answer challenge.
func AuthMessage(challenge string) []byte {
	return []byte(authDomain + challenge)
}

// SignChallenge builds the authenticate event answering challenge.
func SignChallenge(kp *identity.KeyPair, challenge string) Event {
	return Event{
		Type:      TypeAuthenticate,
		Challenge: challenge,
		Identity:  kp.Identity().String(),
		Signature: kp.Sign(AuthMessage(challenge)),
	}
}
