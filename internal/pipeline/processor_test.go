package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
	"github.com/joseph-ayodele/datares-tracker/internal/extract"
	"github.com/joseph-ayodele/datares-tracker/internal/fetch"
	"github.com/joseph-ayodele/datares-tracker/internal/textextract"
)

func TestProcessorOutcomes(t *testing.T) {
	x := extract.NewExtractor(textextract.NewMaterializer(textextract.Config{}, nil), nil, nil)
	d := entity.Descriptor{StockCode: "000001.SZ", ReportDate: "2025-03-15", URL: "https://example.test/a.pdf"}

	tests := []struct {
		name    string
		result  fetch.Result
		wantErr error
		facts   int
	}{
		{"fetch not found", fetch.NotFound("status 404", nil), common.ErrPermanentFetch, 0},
		{"fetch exhausted", fetch.Result{Kind: fetch.KindTransient, Attempts: 3, Err: common.TransientFetchError("status 503", nil)}, common.ErrTransientFetch, 0},
		{"unreadable body", fetch.Success([]byte{0x00, 0x01, 0x02, 0xff}), common.ErrExtraction, 0},
		{"broken pdf", fetch.Success([]byte("%PDF-1.4\nnot really a pdf")), common.ErrExtraction, 0},
		{"no anchors", fetch.Success([]byte("董事会报告\n本公司主营业务为软件开发与信息技术服务")), nil, 0},
		{"inventory", fetch.Success([]byte(docAText)), nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fetch.FetcherFunc(func(context.Context, entity.Descriptor) fetch.Result { return tt.result })
			out := NewProcessor(nil, f, x).Process(context.Background(), d)
			if tt.wantErr != nil {
				assert.ErrorIs(t, out.Err, tt.wantErr)
			} else {
				assert.NoError(t, out.Err)
			}
			assert.Len(t, out.Facts, tt.facts)
			assert.GreaterOrEqual(t, out.Attempts, 1)
		})
	}
}
