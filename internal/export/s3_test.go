package export

import (
	"strings"
	"testing"
	"time"

	"rfidattend/internal/attendance"
)

func TestWriteCSV(t *testing.T) {
	at := time.Date(2024, 3, 4, 8, 15, 0, 0, time.FixedZone("UTC+2", 7200))
	batch := attendance.Batch{
		ID: "b1",
		Records: []attendance.BatchRecord{
			{BadgeID: "RFID001", Name: "Alice Johnson", ClassName: "7A", CheckedInAt: at},
			{Name: "Unknown Student", CheckedInAt: at.Add(time.Minute)},
			{BadgeID: "RFID003", Name: "Brown, Charlie", ClassName: "7B", CheckedInAt: at},
		},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, batch); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "badge_id,name,class_name,checked_in_at\n" +
		"RFID001,Alice Johnson,7A,2024-03-04T06:15:00Z\n" +
		",Unknown Student,,2024-03-04T06:16:00Z\n" +
		"RFID003,\"Brown, Charlie\",7B,2024-03-04T06:15:00Z\n"
	if sb.String() != want {
		t.Fatalf("csv =\n%s\nwant\n%s", sb.String(), want)
	}
}

func TestBatchKey(t *testing.T) {
	if got := BatchKey("batches", "b1"); got != "batches/b1.csv" {
		t.Fatalf("key = %q", got)
	}
	if got := BatchKey("", "b1"); got != "b1.csv" {
		t.Fatalf("key = %q", got)
	}
}
