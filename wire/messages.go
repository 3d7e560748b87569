package wire

import "github.com/capone-project/capone/errs"

// Command identifies which connection-command state machine branch a
// ConnectionInitiation selects.
type Command uint8

const (
	CommandQuery Command = iota
	CommandRequest
	CommandConnect
	CommandTerminate
)

func (c Command) String() string {
	switch c {
	case CommandQuery:
		return "QUERY"
	case CommandRequest:
		return "REQUEST"
	case CommandConnect:
		return "CONNECT"
	case CommandTerminate:
		return "TERMINATE"
	default:
		return "UNKNOWN"
	}
}

// SignatureFieldSize is the fixed, zero-padded width of the signature
// field inside SessionKey. Ed25519 signatures are always 64 bytes, so
// today this padding is a no-op, but the field stays fixed-size so the
// handshake frame's size never depends on the signature scheme.
const SignatureFieldSize = 64

// SessionKey is sent by both sides of a handshake: long-term signing
// identity, ephemeral encryption public key, and a signature over the
// ephemeral key made with the long-term secret key.
type SessionKey struct {
	SignPublic   [32]byte
	EncryptPublic [32]byte
	Signature    [SignatureFieldSize]byte
}

const (
	tagSessionKeySignPublic byte = iota + 1
	tagSessionKeyEncryptPublic
	tagSessionKeySignature
)

func (m *SessionKey) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.field(tagSessionKeySignPublic, m.SignPublic[:])
	w.field(tagSessionKeyEncryptPublic, m.EncryptPublic[:])
	w.field(tagSessionKeySignature, m.Signature[:])
	return w.bytes()
}

func (m *SessionKey) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagSessionKeySignPublic, tagSessionKeyEncryptPublic, tagSessionKeySignature}); err != nil {
		return err
	}
	if len(fields[0].value) != 32 || len(fields[1].value) != 32 || len(fields[2].value) != SignatureFieldSize {
		return errs.New(errs.Protocol, "session key: field length mismatch")
	}
	copy(m.SignPublic[:], fields[0].value)
	copy(m.EncryptPublic[:], fields[1].value)
	copy(m.Signature[:], fields[2].value)
	return nil
}

// ConnectionInitiation opens a command dispatch: it names which of
// Query/Request/Connect/Terminate the rest of the exchange implements.
type ConnectionInitiation struct {
	Command Command
}

const tagInitiationCommand byte = 1

func (m *ConnectionInitiation) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.u8(tagInitiationCommand, uint8(m.Command))
	return w.bytes()
}

func (m *ConnectionInitiation) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagInitiationCommand}); err != nil {
		return err
	}
	v, err := u8Of(fields[0])
	if err != nil {
		return err
	}
	m.Command = Command(v)
	return nil
}

// ServiceDescription answers a Query.
type ServiceDescription struct {
	Name     string
	Category string
	Type     string
	Version  string
	Location string
	Port     string
}

const (
	tagDescName byte = iota + 1
	tagDescCategory
	tagDescType
	tagDescVersion
	tagDescLocation
	tagDescPort
)

func (m *ServiceDescription) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.str(tagDescName, m.Name)
	w.str(tagDescCategory, m.Category)
	w.str(tagDescType, m.Type)
	w.str(tagDescVersion, m.Version)
	w.str(tagDescLocation, m.Location)
	w.str(tagDescPort, m.Port)
	return w.bytes()
}

func (m *ServiceDescription) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	want := []byte{tagDescName, tagDescCategory, tagDescType, tagDescVersion, tagDescLocation, tagDescPort}
	if err := expectTags(fields, want); err != nil {
		return err
	}
	m.Name = string(fields[0].value)
	m.Category = string(fields[1].value)
	m.Type = string(fields[2].value)
	m.Version = string(fields[3].value)
	m.Location = string(fields[4].value)
	m.Port = string(fields[5].value)
	return nil
}

// SessionRequest carries the plugin-specific request parameters sent
// with a Request command.
type SessionRequest struct {
	Parameters []byte
}

const tagRequestParameters byte = 1

func (m *SessionRequest) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.field(tagRequestParameters, m.Parameters)
	return w.bytes()
}

func (m *SessionRequest) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagRequestParameters}); err != nil {
		return err
	}
	m.Parameters = append([]byte(nil), fields[0].value...)
	return nil
}

// CapabilityEntry is one (identity, rights) delegation in a
// capability's chain.
type CapabilityEntry struct {
	Identity [32]byte
	Rights   uint32
}

const (
	tagEntryIdentity byte = iota + 1
	tagEntryRights
)

func (e *CapabilityEntry) marshalTLV() []byte {
	w := &tlvWriter{}
	w.field(tagEntryIdentity, e.Identity[:])
	w.u32(tagEntryRights, e.Rights)
	return w.bytes()
}

func (e *CapabilityEntry) unmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagEntryIdentity, tagEntryRights}); err != nil {
		return err
	}
	if len(fields[0].value) != 32 {
		return errs.New(errs.Protocol, "capability entry: identity wrong length")
	}
	copy(e.Identity[:], fields[0].value)
	rights, err := u32Of(fields[1])
	if err != nil {
		return err
	}
	e.Rights = rights
	return nil
}

// Capability is the wire form of a capability: a secret plus its
// delegation chain.
type Capability struct {
	Secret [32]byte
	Chain  []CapabilityEntry
}

const (
	tagCapSecret byte = iota + 1
	tagCapChainEntry
)

func (m *Capability) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.field(tagCapSecret, m.Secret[:])
	for i := range m.Chain {
		w.field(tagCapChainEntry, m.Chain[i].marshalTLV())
	}
	return w.bytes()
}

func (m *Capability) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if len(fields) < 1 || fields[0].tag != tagCapSecret {
		return errs.New(errs.Protocol, "capability: missing secret field")
	}
	if len(fields[0].value) != 32 {
		return errs.New(errs.Protocol, "capability: secret wrong length")
	}
	copy(m.Secret[:], fields[0].value)
	m.Chain = nil
	for _, f := range fields[1:] {
		if f.tag != tagCapChainEntry {
			return errs.New(errs.Protocol, "capability: unexpected field in chain")
		}
		var e CapabilityEntry
		if err := e.unmarshalTLV(f.value); err != nil {
			return err
		}
		m.Chain = append(m.Chain, e)
	}
	return nil
}

// SessionMessage is the Request reply: the new session's identifier
// and a reference capability delegated to the requester.
type SessionMessage struct {
	Identifier uint32
	Cap        Capability
}

const (
	tagSessionIdentifier byte = iota + 1
	tagSessionCap
)

func (m *SessionMessage) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.u32(tagSessionIdentifier, m.Identifier)
	w.field(tagSessionCap, m.Cap.MarshalTLV())
	return w.bytes()
}

func (m *SessionMessage) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagSessionIdentifier, tagSessionCap}); err != nil {
		return err
	}
	id, err := u32Of(fields[0])
	if err != nil {
		return err
	}
	m.Identifier = id
	return m.Cap.UnmarshalTLV(fields[1].value)
}

// SessionInitiation is sent by the client on Connect: the session
// identifier and the capability it presents.
type SessionInitiation struct {
	Identifier uint32
	Cap        Capability
}

func (m *SessionInitiation) MarshalTLV() []byte {
	return (*SessionMessage)(m).MarshalTLV()
}

func (m *SessionInitiation) UnmarshalTLV(b []byte) error {
	return (*SessionMessage)(m).UnmarshalTLV(b)
}

// SessionTermination is sent by the client on Terminate.
type SessionTermination struct {
	Identifier uint32
	Cap        Capability
}

func (m *SessionTermination) MarshalTLV() []byte {
	return (*SessionMessage)(m).MarshalTLV()
}

func (m *SessionTermination) UnmarshalTLV(b []byte) error {
	return (*SessionMessage)(m).UnmarshalTLV(b)
}

// SessionResult is the server's framed return code for Connect and
// Terminate: zero for OK, nonzero for an error class.
type SessionResult struct {
	Result int32
}

const tagResultCode byte = 1

func (m *SessionResult) MarshalTLV() []byte {
	w := &tlvWriter{}
	w.i32(tagResultCode, m.Result)
	return w.bytes()
}

func (m *SessionResult) UnmarshalTLV(b []byte) error {
	fields, err := parseTLV(b)
	if err != nil {
		return err
	}
	if err := expectTags(fields, []byte{tagResultCode}); err != nil {
		return err
	}
	v, err := i32Of(fields[0])
	if err != nil {
		return err
	}
	m.Result = v
	return nil
}

// Result codes used in SessionResult. Zero is always OK; the rest are
// a compact encoding of the errs.Kind taxonomy so a client can recover
// an error class from the wire without a shared error-message string.
const (
	ResultOK int32 = iota
	ResultUnauthorized
	ResultNotFound
	ResultInvalid
	ResultProtocol
	ResultCrypto
	ResultIo
	ResultConfig
)

// ResultFromErrKind maps an errs.Kind to its wire result code.
func ResultFromErrKind(kind error) int32 {
	switch kind {
	case errs.Unauthorized:
		return ResultUnauthorized
	case errs.NotFound:
		return ResultNotFound
	case errs.Invalid:
		return ResultInvalid
	case errs.Protocol:
		return ResultProtocol
	case errs.Crypto:
		return ResultCrypto
	case errs.Io:
		return ResultIo
	case errs.Config:
		return ResultConfig
	default:
		return ResultInvalid
	}
}
