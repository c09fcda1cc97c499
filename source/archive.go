package source

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"

	"macroflow/models"
)

// metadataSuffix marks the documentation sidecar published inside bulk
// archives next to the data table.
const metadataSuffix = "_MetaData.csv"

// ExtractTable returns the data CSV member of a bulk-download zip payload.
// The member is the first entry in archive order named *.csv that is not
// the metadata sidecar.
func ExtractTable(sourceName string, payload []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, &models.FormatError{Source: sourceName, Detail: "payload is not a zip archive", Err: err}
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".csv") || strings.HasSuffix(f.Name, metadataSuffix) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, &models.FormatError{Source: sourceName, Detail: "failed to open archive member " + f.Name, Err: err}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &models.FormatError{Source: sourceName, Detail: "failed to read archive member " + f.Name, Err: err}
		}
		return data, nil
	}

	return nil, &models.FormatError{Source: sourceName, Detail: "no data csv member in archive"}
}
