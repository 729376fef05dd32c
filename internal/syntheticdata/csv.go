package syntheticdata

import (
	"encoding/csv"
	"hash/fnv"
	"io"
)

// Row is one CSV record: either a token-task (source, target) pair or a
// text-task (text, label) pair, depending on which job the samples were
// generated for.
type Row struct {
	Left  string
	Right string
}

// Split partitions rows into train/test sets using a deterministic hash
// of Left modulo a configured ratio, so the same sample text always lands
// in the same split across repeated exports — this is what prevents a
// near-duplicate value from leaking between train and test.
func Split(rows []Row, testRatio float64) (train, test []Row) {
	if testRatio <= 0 {
		return rows, nil
	}
	if testRatio >= 1 {
		return nil, rows
	}

	threshold := uint32(testRatio * float64(^uint32(0)))
	for _, r := range rows {
		h := fnv.New32a()
		_, _ = h.Write([]byte(r.Left))
		if h.Sum32() < threshold {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test
}

// WriteCSV writes rows as a two-column CSV with the given header, e.g.
// {"source", "target"} for token tasks or {"text", "label"} for text
// tasks.
func WriteCSV(w io.Writer, header [2]string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header[:]); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Left, r.Right}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
