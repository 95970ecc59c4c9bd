package main

import (
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/kirillkom/city-osm-features/internal/infrastructure/osm/pbf"
)

const barTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`

// terminalProgress draws one byte-counting bar per pbf scan pass.
type terminalProgress struct {
	out io.Writer
}

func (p terminalProgress) Start(label string, total int64) pbf.ProgressBar {
	bar := pb.New64(total)
	bar.SetTemplateString(barTemplate)
	bar.Set(pb.Bytes, true)
	bar.Set("prefix", label+" ")
	bar.SetWriter(p.out)
	bar.Start()
	return terminalBar{bar: bar}
}

type terminalBar struct {
	bar *pb.ProgressBar
}

func (b terminalBar) SetCurrent(n int64) { b.bar.SetCurrent(n) }
func (b terminalBar) Finish()            { b.bar.Finish() }
