package vdrlog

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// PcapSource reads a tcpdump/Wireshark capture of live navigation traffic
// and yields one LogRecord per UDP datagram, timestamped with the capture
// time. It covers logs recorded with tcpdump rather than the Data Monitor.
//
// The pure-Go pcapgo reader is used so no libpcap is required; classic
// .pcap files only, not pcapng.
type PcapSource struct {
	path  string
	port  int
	proto Protocol

	f   *os.File
	r   *pcapgo.Reader
	seq int
}

// OpenPcap opens a .pcap capture. Only UDP datagrams destined to the given
// port are yielded; every record carries the supplied protocol hint, since
// a raw capture encodes none. Returns ErrMalformedLog if the file is not a
// readable pcap.
func OpenPcap(path string, port int, proto Protocol) (*PcapSource, error) {
	s := &PcapSource{path: path, port: port, proto: proto}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PcapSource) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", s.path, err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%s: not a pcap capture (%v): %w", s.path, err, ErrMalformedLog)
	}

	s.f = f
	s.r = r
	return nil
}

// Next returns the next matching datagram as a LogRecord, or io.EOF.
func (s *PcapSource) Next() (*LogRecord, error) {
	for {
		data, ci, err := s.r.ReadPacketData()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read packet: %w", err)
		}

		pkt := gopacket.NewPacket(data, s.r.LinkType(), gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if s.port != 0 && int(udp.DstPort) != s.port {
			continue
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)

		rec := &LogRecord{
			Seq:       s.seq,
			Timestamp: ci.Timestamp,
			Payload:   payload,
			Protocol:  s.proto,
		}
		s.seq++
		return rec, nil
	}
}

// Rewind reopens the capture from the start.
func (s *PcapSource) Rewind() error {
	if err := s.f.Close(); err != nil {
		return err
	}
	s.seq = 0
	return s.open()
}

// Close releases the underlying file.
func (s *PcapSource) Close() error {
	return s.f.Close()
}
