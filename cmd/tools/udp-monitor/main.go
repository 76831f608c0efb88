// Command udp-monitor receives replayed NMEA traffic on a UDP port and
// prints per-second throughput, for smoke-testing a replay run end to end.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

func main() {
	port := flag.Int("port", 10110, "UDP port to listen on")
	dump := flag.Bool("dump", false, "Print each received sentence")
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf(":%d", *port))
	if err != nil {
		log.Fatal(err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	fmt.Printf("UDP monitor started on port %d\n", *port)

	var packetCount int64
	var byteCount int64

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			packets := atomic.SwapInt64(&packetCount, 0)
			bytes := atomic.SwapInt64(&byteCount, 0)
			if packets > 0 {
				fmt.Printf("Received: %d sentences/sec, %.1f KB/sec\n",
					packets, float64(bytes)/1024)
			}
		}
	}()

	buffer := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			log.Printf("Read error: %v", err)
			continue
		}

		atomic.AddInt64(&packetCount, 1)
		atomic.AddInt64(&byteCount, int64(n))

		if *dump {
			fmt.Print(strings.TrimRight(string(buffer[:n]), "\r\n") + "\n")
		}
	}
}
