package textextract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/joseph-ayodele/datares-tracker/constants"
)

type stubRunner struct {
	out   string
	err   error
	calls []Command
}

func (s *stubRunner) Run(_ context.Context, c Command) ([]byte, error) {
	s.calls = append(s.calls, c)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.out), nil
}

// balance_sheet.pdf draws its cells out of order with a Type0 font and a
// ToUnicode map, the way report generators usually embed CJK text.
func TestMaterializePDFRows(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("testdata", "balance_sheet.pdf"))
	require.NoError(t, err)

	runner := &stubRunner{err: errors.New("not expected")}
	doc, err := NewMaterializer(Config{UsePdftotext: true}, nil).WithRunner(runner).Materialize(context.Background(), body)
	require.NoError(t, err)
	assert.Empty(t, runner.calls, "the built-in reader handles this file")
	assert.Equal(t, constants.PDF, doc.Kind)
	assert.Equal(t, "pdf-rows", doc.Method)
	assert.Equal(t, 1, doc.Pages)
	assert.Equal(t, strings.Join([]string{
		"合并资产负债表",
		"项目 期末余额 期初余额",
		"存货 7 1,234,567.89 1,000,000.00",
		"其中:数据资源 12,000.00 8,000.00",
		"无形资产 8,000,000.00 7,500,000.00",
	}, "\n"), doc.Text)
}

func TestMaterializeHTMLTable(t *testing.T) {
	body := []byte(`<!DOCTYPE html><html><head><style>td{}</style></head><body>
<h2>合并资产负债表</h2>
<table>
<tr><th>项目</th><th>期末余额</th></tr>
<tr><td>存货</td><td>1,234.56</td></tr>
<tr><td><p>其中：数据资源</p></td><td>100.00</td></tr>
</table>
<p>附注说明</p>
</body></html>`)

	doc, err := NewMaterializer(Config{}, nil).Materialize(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, constants.HTML, doc.Kind)
	assert.Equal(t, "html", doc.Method)
	assert.Equal(t, "合并资产负债表\n项目 期末余额\n存货 1,234.56\n其中:数据资源 100.00\n附注说明", doc.Text)
}

func TestMaterializePlainText(t *testing.T) {
	body := []byte("无形资产　２，０００．００\r\n其中：数据资源　５００．００\r\n")
	doc, err := NewMaterializer(Config{}, nil).Materialize(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, constants.TXT, doc.Kind)
	assert.Equal(t, "无形资产 2,000.00\n其中:数据资源 500.00", doc.Text)
}

func TestMaterializeGB18030Text(t *testing.T) {
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String("开发支出 3,000.00 其中：数据资源 12.00")
	require.NoError(t, err)

	doc, err := NewMaterializer(Config{}, nil).Materialize(context.Background(), []byte(encoded))
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "开发支出 3,000.00")
	assert.Contains(t, doc.Text, "数据资源")
}

func TestMaterializeRejectsBinary(t *testing.T) {
	_, err := NewMaterializer(Config{}, nil).Materialize(context.Background(), []byte{0x00, 0x01, 0x02, 0xff, 0xfe})
	require.Error(t, err)
}

func TestMaterializeEmptyTextFails(t *testing.T) {
	_, err := NewMaterializer(Config{}, nil).Materialize(context.Background(), []byte("  \n "))
	require.Error(t, err)
}

func TestMaterializeBrokenPDFUsesPdftotext(t *testing.T) {
	runner := &stubRunner{out: "存货 1,234.56\n其中：数据资源 100.00\n\f"}
	m := NewMaterializer(Config{UsePdftotext: true, Pdftotext: "/usr/bin/pdftotext"}, nil).WithRunner(runner)

	doc, err := m.Materialize(context.Background(), []byte("%PDF-1.4\nnot really a pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdftotext", doc.Method)
	assert.Equal(t, constants.PDF, doc.Kind)
	assert.Equal(t, 1, doc.Pages)
	assert.Equal(t, "存货 1,234.56\n其中:数据资源 100.00", doc.Text)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/usr/bin/pdftotext", call.Name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "-", "-"}, call.Args)
	assert.True(t, strings.HasPrefix(string(call.Stdin), "%PDF-1.4"))
}

func TestMaterializeBrokenPDFWithoutFallback(t *testing.T) {
	runner := &stubRunner{}
	m := NewMaterializer(Config{}, nil).WithRunner(runner)

	_, err := m.Materialize(context.Background(), []byte("%PDF-1.4\nnot really a pdf"))
	require.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestMaterializePdftotextFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("pdftotext: exit status 1")}
	m := NewMaterializer(Config{UsePdftotext: true}, nil).WithRunner(runner)

	_, err := m.Materialize(context.Background(), []byte("%PDF-1.4\nnot really a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext")
}
