// Package segment decodes IPv4/TCP datagrams captured off the wire and stages
// their payload into a buffer's input region. It does no socket I/O.
package segment

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"proxybuf/pkg/chanbuf"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("pkg", "segment")

const (
	MTU                 = 1400 // maximum-transmission-unit, default 1400 bytes
	DefaultIpHeaderLen  = ipv4header.HeaderLen
	DefaultTcpHeaderLen = header.TCPMinimumSize
	TcpPseudoHeaderLen  = 12
	MSS                 = MTU - DefaultTcpHeaderLen - DefaultIpHeaderLen

	maxTcpHeaderLen = 60

	ProtoNumTCP uint8 = uint8(header.TCPProtocolNumber)
)

var (
	ErrChecksum  = errors.New("checksum mismatch")
	ErrNotTCP    = errors.New("not a TCP datagram")
	ErrTruncated = errors.New("truncated datagram")
)

// Segment is a decoded datagram. TCP and Payload alias the parsed bytes; TCP
// covers the header including options.
type Segment struct {
	IP      *ipv4header.IPv4Header
	TCP     header.TCP
	Payload []byte
}

func (s *Segment) Src() netip.AddrPort { return netip.AddrPortFrom(s.IP.Src, s.TCP.SourcePort()) }
func (s *Segment) Dst() netip.AddrPort { return netip.AddrPortFrom(s.IP.Dst, s.TCP.DestinationPort()) }
func (s *Segment) Seq() uint32         { return s.TCP.SequenceNumber() }

// Options returns the raw TCP options, empty for a 20 byte header.
func (s *Segment) Options() []byte { return s.TCP[DefaultTcpHeaderLen:] }

func (s *Segment) String() string {
	return fmt.Sprintf("%v -> %v %s len=%d", s.Src(), s.Dst(), tcpString(s.TCP), len(s.Payload))
}

// Build marshals a PSH+ACK segment carrying payload, with both checksums set.
func Build(src, dst netip.AddrPort, seq uint32, payload []byte) ([]byte, error) {
	return build(src, dst, &header.TCPFields{
		SeqNum:     seq,
		Flags:      header.TCPFlagPsh | header.TCPFlagAck,
		WindowSize: 0xffff,
	}, nil, payload)
}

// build fills in ports and data offset from its arguments. options must be
// padded to a multiple of 4 bytes.
func build(src, dst netip.AddrPort, fields *header.TCPFields, options, payload []byte) ([]byte, error) {
	if len(options)%4 != 0 || DefaultTcpHeaderLen+len(options) > maxTcpHeaderLen {
		return nil, errors.Errorf("invalid tcp options length %d", len(options))
	}
	if len(payload) > MSS-len(options) {
		return nil, errors.Errorf("payload of %d bytes exceeds MSS %d", len(payload), MSS-len(options))
	}
	hdrLen := DefaultTcpHeaderLen + len(options)
	tcpLen := hdrLen + len(payload)

	ipHdr := &ipv4header.IPv4Header{
		Version:  4,
		Len:      DefaultIpHeaderLen, // no IP options
		TotalLen: DefaultIpHeaderLen + tcpLen,
		TTL:      32,
		Protocol: int(ProtoNumTCP),
		Src:      src.Addr(),
		Dst:      dst.Addr(),
		Options:  []byte{},
	}
	headerBytes, err := ipHdr.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ip header")
	}
	ipHdr.Checksum = int(ComputeChecksum(headerBytes))
	if headerBytes, err = ipHdr.Marshal(); err != nil {
		return nil, errors.Wrap(err, "marshal ip header")
	}

	packet := make([]byte, DefaultIpHeaderLen+tcpLen)
	copy(packet, headerBytes)
	seg := header.TCP(packet[DefaultIpHeaderLen:])
	f := *fields
	f.SrcPort, f.DstPort = src.Port(), dst.Port()
	f.DataOffset = uint8(hdrLen)
	f.Checksum = 0
	seg.Encode(&f)
	copy(seg[DefaultTcpHeaderLen:], options)
	copy(seg[hdrLen:], payload)
	seg.SetChecksum(^segmentSum(src.Addr(), dst.Addr(), seg))
	return packet, nil
}

// Parse decodes an IPv4 datagram holding a TCP segment and validates both
// checksums. The segment aliases b.
func Parse(b []byte) (*Segment, error) {
	hdr, err := ipv4header.ParseHeader(b)
	if err != nil {
		return nil, errors.Wrap(err, "parse ip header")
	}
	if hdr.TotalLen > len(b) || hdr.TotalLen < hdr.Len+DefaultTcpHeaderLen {
		return nil, errors.Wrapf(ErrTruncated, "total length %d, have %d bytes", hdr.TotalLen, len(b))
	}
	checksumFromHeader := uint16(hdr.Checksum)
	if checksumFromHeader != ValidateIPChecksum(b[:hdr.Len], checksumFromHeader) {
		return nil, errors.Wrap(ErrChecksum, "ip header")
	}
	if uint8(hdr.Protocol) != ProtoNumTCP {
		return nil, errors.Wrapf(ErrNotTCP, "protocol %d", hdr.Protocol)
	}

	data := header.TCP(b[hdr.Len:hdr.TotalLen])
	off := int(data.DataOffset())
	if off < DefaultTcpHeaderLen || off > len(data) {
		return nil, errors.Wrapf(ErrTruncated, "tcp data offset %d", off)
	}
	// summing the stored checksum along with everything else folds to all ones
	if segmentSum(hdr.Src, hdr.Dst, data) != 0xffff {
		return nil, errors.Wrap(ErrChecksum, "tcp segment")
	}
	return &Segment{IP: hdr, TCP: data[:off], Payload: data[off:]}, nil
}

// Ingest parses packet and appends its payload to buf's input region, keeping
// reserve bytes free. When the payload does not fit nothing is written and the
// error wraps chanbuf.ErrNoSpace.
func Ingest(buf *chanbuf.Buffer, packet []byte, reserve int) (*Segment, error) {
	s, err := Parse(packet)
	if err != nil {
		logger.WithError(err).Debug("datagram dropped")
		return nil, err
	}
	if _, err := buf.WriteReserved(s.Payload, reserve); err != nil {
		return s, errors.WithMessagef(err, "segment seq %d", s.Seq())
	}
	return s, nil
}

func ComputeChecksum(b []byte) uint16 {
	// the checksum function returns the inverse on an initial computation
	return header.Checksum(b, 0) ^ 0xffff
}

// ValidateIPChecksum folds the stored checksum back in; the result equals it
// when the header is intact.
func ValidateIPChecksum(b []byte, fromHeader uint16) uint16 {
	return header.Checksum(b, fromHeader)
}

// segmentSum is the folded one's complement sum of the IPv4 pseudo header and
// seg, the whole TCP segment with options and payload, summed as stored.
func segmentSum(src, dst netip.Addr, seg []byte) uint16 {
	var pseudo [TcpPseudoHeaderLen]byte
	s4, d4 := src.As4(), dst.As4()
	copy(pseudo[0:4], s4[:])
	copy(pseudo[4:8], d4[:])
	pseudo[9] = ProtoNumTCP
	binary.BigEndian.PutUint16(pseudo[10:], uint16(len(seg)))
	return header.Checksum(seg, header.Checksum(pseudo[:], 0))
}

func TCPFlagsAsString(flags uint8) string {
	names := []struct {
		flag uint8
		name string
	}{
		{header.TCPFlagSyn, "SYN"},
		{header.TCPFlagAck, "ACK"},
		{header.TCPFlagPsh, "PSH"},
		{header.TCPFlagFin, "FIN"},
		{header.TCPFlagRst, "RST"},
		{header.TCPFlagUrg, "URG"},
	}
	matches := make([]string, 0)
	for _, n := range names {
		if n.flag&flags == n.flag {
			matches = append(matches, n.name)
		}
	}
	return strings.Join(matches, "+")
}

func tcpString(td header.TCP) string {
	return fmt.Sprintf("{SrcPort:%d DstPort:%d SeqNum:%d AckNum:%d Flags:%s WindowSize:%d Options:%d}",
		td.SourcePort(), td.DestinationPort(), td.SequenceNumber(), td.AckNumber(),
		TCPFlagsAsString(td.Flags()), td.WindowSize(), int(td.DataOffset())-DefaultTcpHeaderLen)
}
