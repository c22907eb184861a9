package storage

import (
	"encoding/json"
	"errors"

	"gephyra/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// ErrVersionMismatch marks a persisted record whose schema or codec
// version this build does not understand.
var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion stamps a record with this build's versions.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodePopulation(snapshot model.PopulationSnapshot) ([]byte, error) {
	return json.Marshal(snapshot)
}

func DecodePopulation(data []byte) (model.PopulationSnapshot, error) {
	var snapshot model.PopulationSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.PopulationSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.PopulationSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeGenomeRecord(record model.GenomeRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeGenomeRecord(data []byte) (model.GenomeRecord, error) {
	var record model.GenomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.GenomeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.GenomeRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
