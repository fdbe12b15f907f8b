package blendresult

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zip"
)

// MediaType is the media type of the exported spreadsheet.
const MediaType = "application/vnd.oasis.opendocument.spreadsheet"

const manifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:version="1.2" manifest:media-type="` + MediaType + `"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

const contentHeader = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content` +
	` xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0"` +
	` xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0"` +
	` xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"` +
	` office:version="1.2"><office:body><office:spreadsheet>`

const contentFooter = `</office:spreadsheet></office:body></office:document-content>`

// ExportSpreadsheet renders the matrix as an OpenDocument spreadsheet with a
// "Results" sheet and a "Summary" sheet.
func (m *Matrix) ExportSpreadsheet() ([]byte, error) {
	var content bytes.Buffer

	content.WriteString(contentHeader)

	if err := m.writeResults(&content); err != nil {
		return nil, fmt.Errorf("writing results sheet: %w", err)
	}

	if err := m.writeSummary(&content); err != nil {
		return nil, fmt.Errorf("writing summary sheet: %w", err)
	}

	content.WriteString(contentFooter)

	var out bytes.Buffer

	zw := zip.NewWriter(&out)

	// The mimetype entry must come first and be stored uncompressed.
	mw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, fmt.Errorf("creating mimetype entry: %w", err)
	}

	if _, err := mw.Write([]byte(MediaType)); err != nil {
		return nil, fmt.Errorf("writing mimetype entry: %w", err)
	}

	entries := []struct {
		name string
		data []byte
	}{
		{name: "META-INF/manifest.xml", data: []byte(manifestXML)},
		{name: "content.xml", data: content.Bytes()},
	}

	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", entry.name, err)
		}

		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", entry.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	return out.Bytes(), nil
}

func (m *Matrix) writeResults(buf *bytes.Buffer) error {
	buf.WriteString(`<table:table table:name="Results">`)

	header := append([]string{"Test"}, m.Columns...)
	if err := writeStringRow(buf, header); err != nil {
		return err
	}

	for _, row := range m.Rows {
		cells := append([]string{row.Key}, row.Cells...)
		if err := writeStringRow(buf, cells); err != nil {
			return err
		}
	}

	buf.WriteString(`</table:table>`)

	return nil
}

func (m *Matrix) writeSummary(buf *bytes.Buffer) error {
	buf.WriteString(`<table:table table:name="Summary">`)

	if err := writeStringRow(buf, []string{"Document", "Total", "Passed", "Failed", "Skipped"}); err != nil {
		return err
	}

	for _, s := range m.Summaries {
		buf.WriteString(`<table:table-row>`)

		if err := writeStringCell(buf, s.Document); err != nil {
			return err
		}

		for _, n := range []int{s.Total, s.Passed, s.Failed, s.Skipped} {
			v := strconv.Itoa(n)
			buf.WriteString(`<table:table-cell office:value-type="float" office:value="` + v + `"><text:p>` + v + `</text:p></table:table-cell>`)
		}

		buf.WriteString(`</table:table-row>`)
	}

	buf.WriteString(`</table:table>`)

	return nil
}

func writeStringRow(buf *bytes.Buffer, cells []string) error {
	buf.WriteString(`<table:table-row>`)

	for _, cell := range cells {
		if err := writeStringCell(buf, cell); err != nil {
			return err
		}
	}

	buf.WriteString(`</table:table-row>`)

	return nil
}

func writeStringCell(buf *bytes.Buffer, value string) error {
	if value == "" {
		buf.WriteString(`<table:table-cell/>`)

		return nil
	}

	buf.WriteString(`<table:table-cell office:value-type="string"><text:p>`)

	if err := xml.EscapeText(buf, []byte(value)); err != nil {
		return err
	}

	buf.WriteString(`</text:p></table:table-cell>`)

	return nil
}
