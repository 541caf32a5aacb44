// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package portfolio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// oleMagic is the compound-file signature that opens every legacy
// binary .xls workbook. Files named .xls without it are usually OOXML
// books with the wrong extension.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}

// ErrUnsupportedType signals a file extension the sheet reader does not
// handle. Callers degrade to a plain-text note in the conversation
// instead of holdings; this error is never fatal to a request.
var ErrUnsupportedType = errors.New("unsupported file type")

// ReadRows parses an uploaded file into ordered rows.
//
// # Description
//
// Dispatches on the file extension: CSV and TXT go through the
// delimited-text reader, XLSX through the OOXML reader, and XLS
// through the legacy BIFF reader (all workbooks first sheet only).
// The first row is treated as the header; every following row becomes
// a RawRow keyed by those headers. Any other extension returns
// ErrUnsupportedType.
//
// # Inputs
//
//   - name: Original file name; only the extension is consulted
//   - data: Raw file bytes
//
// # Outputs
//
//   - []RawRow: Data rows in file order. Empty when the file holds
//     only a header or nothing at all.
//   - error: ErrUnsupportedType for unknown extensions, or the parser
//     error for corrupt content
func ReadRows(name string, data []byte) ([]RawRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return readDelimited(data)
	case ".xls":
		// Tools exporting OOXML under a .xls name are common enough
		// to sniff for; only true compound files go to the BIFF path.
		if bytes.HasPrefix(data, oleMagic) {
			return readLegacyWorkbook(data)
		}
		return readWorkbook(data)
	case ".xlsx":
		return readWorkbook(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
	}
}

// readDelimited parses header-first CSV content into rows.
//
// Records with a deviating field count are tolerated (short records
// leave trailing columns empty, long records drop the excess) so one
// ragged line does not reject an otherwise usable file.
func readDelimited(data []byte) ([]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read the header row: %w", err)
	}

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read a data row: %w", err)
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows, nil
}

// readWorkbook parses the first sheet of an XLSX workbook into rows.
func readWorkbook(data []byte) ([]RawRow, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open the workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rowsFromRecords(records), nil
}

// readLegacyWorkbook parses the first sheet of a pre-OOXML binary .xls
// workbook into rows.
func readLegacyWorkbook(data []byte) ([]RawRow, error) {
	book, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open the legacy workbook: %w", err)
	}

	sheet, err := book.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read the first sheet: %w", err)
	}

	var records [][]string
	for i := 0; i <= sheet.GetNumberRows(); i++ {
		row, err := sheet.GetRow(i)
		if err != nil {
			continue
		}
		var record []string
		for _, cell := range row.GetCols() {
			record = append(record, cell.GetString())
		}
		records = append(records, record)
	}
	return rowsFromRecords(records), nil
}

// rowsFromRecords treats the first record as the header and zips the
// rest against it.
func rowsFromRecords(records [][]string) []RawRow {
	if len(records) == 0 {
		return nil
	}
	header := records[0]
	var rows []RawRow
	for _, record := range records[1:] {
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows
}

// rowFromRecord zips one record against the header. Cells beyond the
// header width are dropped; missing trailing cells stay empty.
func rowFromRecord(header, record []string) RawRow {
	row := RawRow{
		Columns: header,
		Values:  make(map[string]string, len(header)),
	}
	for i, col := range header {
		if i < len(record) {
			row.Values[col] = record[i]
		}
	}
	return row
}
