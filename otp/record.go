package otp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"time"
)

const (
	recordVersionV1 = 1
	recordSizeV1    = 1 + 1 + 2 + 8 + 32
)

// Channel is the delivery channel recorded with a challenge.
type Channel uint8

const (
	// ChannelEmail delivers to an email address.
	ChannelEmail Channel = 1
	// ChannelSMS delivers to a phone number.
	ChannelSMS Channel = 2
)

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// ChannelFor infers the delivery channel from the identifier shape.
func ChannelFor(identifier string) Channel {
	if strings.Contains(identifier, "@") {
		return ChannelEmail
	}
	return ChannelSMS
}

type record struct {
	Channel   Channel
	Attempts  uint16
	ExpiresAt int64 // unix millis
	CodeHash  [32]byte
}

func (r *record) expiresAt() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// exhausted reports whether the code hash has been wiped.
func (r *record) exhausted() bool {
	return r.CodeHash == [32]byte{}
}

func encodeRecord(r *record) []byte {
	buf := make([]byte, 0, recordSizeV1)
	buf = append(buf, recordVersionV1, byte(r.Channel))
	buf = binary.BigEndian.AppendUint16(buf, r.Attempts)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.ExpiresAt))
	buf = append(buf, r.CodeHash[:]...)
	return buf
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}
	if len(data) != recordSizeV1 {
		return nil, errors.New("invalid challenge record length")
	}

	channel, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r := &record{Channel: Channel(channel)}
	if err := binary.Read(reader, binary.BigEndian, &r.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, r.CodeHash[:]); err != nil {
		return nil, err
	}
	return r, nil
}
