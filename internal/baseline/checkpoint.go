package baseline

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Checkpoint file layout (one file per shard, per spec §6):
//
//	magic   [4]byte  "SBL1"
//	version byte     1
//	record* length-prefixed, CRC32-trailed:
//	  length  uint32 (payload length, not including length/crc fields)
//	  payload []byte (JSON-encoded checkpointRecord)
//	  crc32   uint32 (IEEE, over payload)
//
// A record whose length or CRC does not check out — including a file
// truncated mid-write by a crash — is dropped along with everything after
// it; the checkpoint is best-effort, not a WAL.
var checkpointMagic = [4]byte{'S', 'B', 'L', '1'}

const checkpointVersion byte = 1

// checkpointRecord is the serializable form of one baseline's state.
type checkpointRecord struct {
	ServiceID string    `json:"service_id"`
	ModelID   string    `json:"model_id"`
	Metric    string    `json:"metric"`
	Samples   []float64 `json:"samples"`
	Count     int64     `json:"count"`
	Mean      float64   `json:"mean"`
	M2        float64   `json:"m2"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	CUSUMPos  float64   `json:"cusum_pos"`
	CUSUMNeg  float64   `json:"cusum_neg"`
}

// ShardFileName returns the checkpoint file name for shard index i.
func ShardFileName(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("shard-%04d.sbl", i))
}

// Checkpoint writes every shard's baselines to dir, one file per shard.
// Existing files are overwritten atomically (write to temp, rename).
func (s *Store) Checkpoint(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("baseline: mkdir checkpoint dir: %w", err)
	}
	for i, sh := range s.shards {
		if err := writeShardCheckpoint(ShardFileName(dir, i), sh); err != nil {
			return fmt.Errorf("baseline: checkpoint shard %d: %w", i, err)
		}
	}
	return nil
}

func writeShardCheckpoint(path string, sh *shard) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	if _, err := w.Write(checkpointMagic[:]); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteByte(checkpointVersion); err != nil {
		f.Close()
		return err
	}

	sh.mu.Lock()
	for _, b := range sh.data {
		rec := checkpointRecord{
			ServiceID: b.key.ServiceID,
			ModelID:   b.key.ModelID,
			Metric:    b.key.Metric,
			Samples:   append([]float64(nil), b.samples...),
			Count:     b.count,
			Mean:      b.mean,
			M2:        b.m2,
			Min:       b.min,
			Max:       b.max,
			CUSUMPos:  b.cusumPos,
			CUSUMNeg:  b.cusumNeg,
		}
		if err := writeRecord(w, rec); err != nil {
			sh.mu.Unlock()
			f.Close()
			return err
		}
	}
	sh.mu.Unlock()

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeRecord(w *bufio.Writer, rec checkpointRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(payload))
	_, err = w.Write(crcBuf[:])
	return err
}

// Restore loads every shard checkpoint file found in dir, replacing any
// in-memory state for keys present in the files. Missing files are
// tolerated (a fresh shard starts empty). Returns the number of baselines
// restored and the number of trailing records discarded due to truncation
// or CRC mismatch.
func (s *Store) Restore(dir string) (restored int, discarded int, err error) {
	for i, sh := range s.shards {
		path := ShardFileName(dir, i)
		n, d, rerr := restoreShardCheckpoint(path, sh, s.cfg.WindowSize)
		if rerr != nil {
			if os.IsNotExist(rerr) {
				continue
			}
			return restored, discarded, fmt.Errorf("baseline: restore shard %d: %w", i, rerr)
		}
		restored += n
		discarded += d
	}
	return restored, discarded, nil
}

func restoreShardCheckpoint(path string, sh *shard, windowCap int) (restored int, discarded int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, 0, nil // empty or unreadable header; nothing to restore
	}
	if magic != checkpointMagic {
		return 0, 0, fmt.Errorf("bad checkpoint magic in %s", path)
	}
	version, err := r.ReadByte()
	if err != nil || version != checkpointVersion {
		return 0, 0, fmt.Errorf("unsupported checkpoint version in %s", path)
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	for {
		rec, ok, derr := readRecord(r)
		if derr != nil {
			discarded++
			break // truncated or corrupt trailing record: stop, discard rest
		}
		if !ok {
			break // clean EOF
		}
		b := newBaseline(telemetry.BaselineKey{
			ServiceID: rec.ServiceID,
			ModelID:   rec.ModelID,
			Metric:    rec.Metric,
		}, windowCap)
		b.samples = append(b.samples[:0], rec.Samples...)
		if len(b.samples) > windowCap {
			b.samples = b.samples[len(b.samples)-windowCap:]
		}
		b.count = rec.Count
		b.mean = rec.Mean
		b.m2 = rec.M2
		b.min = rec.Min
		b.max = rec.Max
		b.cusumPos = rec.CUSUMPos
		b.cusumNeg = rec.CUSUMNeg
		sh.data[b.key] = b
		restored++
	}
	return restored, discarded, nil
}

// readRecord reads one length-prefixed, CRC-trailed record. ok is false on
// clean EOF (no more records); err is non-nil if a record was started but
// could not be fully read or its CRC mismatched.
func readRecord(r *bufio.Reader) (rec checkpointRecord, ok bool, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return rec, false, nil
		}
		return rec, false, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return rec, false, err
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return rec, false, err
	}
	want := binary.BigEndian.Uint32(crcBuf[:])
	if got := crc32.ChecksumIEEE(payload); got != want {
		return rec, false, fmt.Errorf("crc mismatch")
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// CheckpointEntry is the read-only, exported view of one checkpointed
// baseline, for offline inspection tools that have no live Store to
// restore into (spec §4 ADD, cmd/sentinel-checkpoint).
type CheckpointEntry struct {
	ServiceID string
	ModelID   string
	Metric    string
	Count     int64
	Mean      float64
	Min       float64
	Max       float64
	Samples   int
}

// InspectShardFile parses one shard checkpoint file without needing a live
// Store, returning every valid record and the number of trailing records
// discarded due to truncation or CRC mismatch.
func InspectShardFile(path string) (entries []CheckpointEntry, discarded int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, io.ErrUnexpectedEOF)
	}
	if magic != checkpointMagic {
		return nil, 0, fmt.Errorf("%s: bad checkpoint magic", path)
	}
	version, err := r.ReadByte()
	if err != nil || version != checkpointVersion {
		return nil, 0, fmt.Errorf("%s: unsupported checkpoint version", path)
	}

	for {
		rec, ok, derr := readRecord(r)
		if derr != nil {
			discarded++
			break
		}
		if !ok {
			break
		}
		entries = append(entries, CheckpointEntry{
			ServiceID: rec.ServiceID,
			ModelID:   rec.ModelID,
			Metric:    rec.Metric,
			Count:     rec.Count,
			Mean:      rec.Mean,
			Min:       rec.Min,
			Max:       rec.Max,
			Samples:   len(rec.Samples),
		})
	}
	return entries, discarded, nil
}
