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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// TestReadRows_CSV verifies header-keyed row extraction from CSV bytes.
func TestReadRows_CSV(t *testing.T) {
	data := []byte("ticker,qty\naapl,3\nmsft,2\n")

	rows, err := ReadRows("portfolio.csv", data)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ticker", "qty"}, rows[0].Columns)
	assert.Equal(t, "aapl", rows[0].Values["ticker"])
	assert.Equal(t, "2", rows[1].Values["qty"])
}

// TestReadRows_TXT verifies the .txt extension routes through the
// delimited-text reader.
func TestReadRows_TXT(t *testing.T) {
	rows, err := ReadRows("export.txt", []byte("symbol,quantity\nvoo,1\n"))

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "voo", rows[0].Values["symbol"])
}

// TestReadRows_RaggedCSV verifies short and long records survive: short
// records leave trailing cells empty, long records drop the excess.
func TestReadRows_RaggedCSV(t *testing.T) {
	data := []byte("ticker,qty\naapl\nmsft,2,extra\n")

	rows, err := ReadRows("ragged.csv", data)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].Values["qty"])
	assert.Equal(t, "2", rows[1].Values["qty"])
}

// TestReadRows_EmptyCSV verifies an empty file yields no rows and no
// error (empty holdings are not a failure).
func TestReadRows_EmptyCSV(t *testing.T) {
	rows, err := ReadRows("empty.csv", nil)

	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestReadRows_HeaderOnlyCSV verifies a header with no data rows yields
// an empty row list.
func TestReadRows_HeaderOnlyCSV(t *testing.T) {
	rows, err := ReadRows("header.csv", []byte("ticker,qty\n"))

	require.NoError(t, err)
	assert.Empty(t, rows)
}

// TestReadRows_XLSX builds a workbook in memory and verifies first-sheet
// extraction with header-keyed values.
func TestReadRows_XLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"ticker", "qty"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"aapl", 3}))
	require.NoError(t, book.SetSheetRow(sheet, "A3", &[]interface{}{"msft", 2}))

	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	rows, err := ReadRows("portfolio.xlsx", buf.Bytes())

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "aapl", rows[0].Values["ticker"])
	assert.Equal(t, "3", rows[0].Values["qty"])
}

// TestReadRows_MislabeledXLS verifies an OOXML workbook saved under a
// .xls name still parses: the dispatcher sniffs the compound-file magic
// and only true binary books take the legacy path.
func TestReadRows_MislabeledXLS(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]interface{}{"ticker", "qty"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]interface{}{"voo", 5}))

	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	rows, err := ReadRows("portfolio.xls", buf.Bytes())

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "voo", rows[0].Values["ticker"])
	assert.Equal(t, "5", rows[0].Values["qty"])
}

// TestReadRows_CorruptLegacyWorkbook verifies truncated compound-file
// bytes under a .xls name return a parser error rather than
// ErrUnsupportedType.
func TestReadRows_CorruptLegacyWorkbook(t *testing.T) {
	data := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

	_, err := ReadRows("broken.xls", data)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}

// TestReadRows_UnsupportedExtension verifies unknown extensions surface
// ErrUnsupportedType so the caller can degrade to a text note.
func TestReadRows_UnsupportedExtension(t *testing.T) {
	_, err := ReadRows("notes.pdf", []byte("%PDF-1.4"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

// TestReadRows_CorruptWorkbook verifies corrupt spreadsheet bytes return
// a parser error distinct from ErrUnsupportedType.
func TestReadRows_CorruptWorkbook(t *testing.T) {
	_, err := ReadRows("broken.xlsx", []byte("not a zip archive"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedType)
}
