// Command gen-vdrlog generates sample VDR CSV recordings for testing replay.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

func main() {
	output := flag.String("o", "sample.csv", "output path")
	sentences := flag.Int("n", 100, "number of sentences")
	interval := flag.Int("interval", 500, "inter-sentence gap in milliseconds")
	protocol := flag.String("protocol", "0183", "protocol column value: 0183 or signalk")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"received_at", "protocol", "raw_data"}); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	ts := time.Now().Add(-time.Duration(*sentences**interval) * time.Millisecond)
	for i := 0; i < *sentences; i++ {
		ms := float64(ts.UnixNano()) / float64(time.Millisecond)
		row := []string{
			strconv.FormatFloat(ms, 'f', 1, 64),
			*protocol,
			sentenceFor(i, ts) + "<0D><0A>",
		}
		if err := w.Write(row); err != nil {
			log.Fatalf("failed to write row: %v", err)
		}
		ts = ts.Add(time.Duration(*interval) * time.Millisecond)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("failed to flush: %v", err)
	}

	log.Printf("✓ Created: %s (%d sentences)", *output, *sentences)
}

// sentenceFor alternates GGA and RMC fixes walking slowly north, with a
// valid checksum so downstream parsers accept the output.
func sentenceFor(i int, ts time.Time) string {
	lat := 5030.0 + float64(i)*0.01
	clock := ts.UTC().Format("150405.00")

	var body string
	if i%2 == 0 {
		body = fmt.Sprintf("GPGGA,%s,%09.4f,N,00122.2500,W,1,08,0.9,12.3,M,47.0,M,,", clock, lat)
	} else {
		body = fmt.Sprintf("GPRMC,%s,A,%09.4f,N,00122.2500,W,5.2,054.7,%s,,,A",
			clock, lat, ts.UTC().Format("020106"))
	}
	return fmt.Sprintf("$%s*%02X", body, checksum(body))
}

func checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}
