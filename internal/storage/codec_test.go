package storage

import (
	"errors"
	"reflect"
	"testing"

	"gephyra/internal/model"
)

func TestRunRecordCodecRoundTrip(t *testing.T) {
	run := sampleRun("run-1", "2025-03-09T12:00:00Z")

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	got, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if !reflect.DeepEqual(got, run) {
		t.Fatalf("run codec mismatch:\ngot  %+v\nwant %+v", got, run)
	}
}

func TestPopulationCodecRoundTrip(t *testing.T) {
	snapshot := sampleSnapshot("run-1", 0)

	data, err := EncodePopulation(snapshot)
	if err != nil {
		t.Fatalf("encode population: %v", err)
	}
	got, err := DecodePopulation(data)
	if err != nil {
		t.Fatalf("decode population: %v", err)
	}
	if !reflect.DeepEqual(got, snapshot) {
		t.Fatal("population codec mismatch")
	}
}

func TestGenomeRecordCodecRoundTrip(t *testing.T) {
	record := model.GenomeRecord{
		VersionedRecord: CurrentVersion(),
		RunID:           "run-1",
		Population:      0,
		Fitness:         42.5,
		Genome:          sampleGenome(),
	}

	data, err := EncodeGenomeRecord(record)
	if err != nil {
		t.Fatalf("encode genome record: %v", err)
	}
	got, err := DecodeGenomeRecord(data)
	if err != nil {
		t.Fatalf("decode genome record: %v", err)
	}
	if !reflect.DeepEqual(got, record) {
		t.Fatal("genome record codec mismatch")
	}
}

func TestDecodeRejectsForeignVersions(t *testing.T) {
	run := sampleRun("run-1", "2025-03-09T12:00:00Z")
	run.SchemaVersion = CurrentSchemaVersion + 1

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("got %v, want ErrVersionMismatch", err)
	}

	snapshot := sampleSnapshot("run-1", 0)
	snapshot.CodecVersion = CurrentCodecVersion + 1
	data, err = EncodePopulation(snapshot)
	if err != nil {
		t.Fatalf("encode population: %v", err)
	}
	if _, err := DecodePopulation(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("got %v, want ErrVersionMismatch", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeRun([]byte("not json")); err == nil {
		t.Fatal("expected a decode error for garbage payload")
	}
	if _, err := DecodePopulation([]byte("{")); err == nil {
		t.Fatal("expected a decode error for truncated payload")
	}
}
