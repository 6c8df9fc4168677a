package web

import (
	"html/template"
	"time"

	"github.com/dustin/go-humanize"

	"evboard/internal/export"
	"evboard/internal/model"
)

func templateFuncs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"when": func(epoch int64) string {
			return time.Unix(epoch, 0).In(loc).Format(export.TimeLayout)
		},
		"stamp": func(t time.Time) string {
			return t.In(loc).Format("2006/01/02 15:04:05")
		},
		"count": func(c model.Count) string {
			if !c.Available {
				return "-"
			}
			return humanize.Comma(int64(c.Value))
		},
		"comma": humanize.Comma,
		"inc":   func(i int) int { return i + 1 },
		"selected": func(list []model.Status, st model.Status) bool {
			for _, v := range list {
				if v == st {
					return true
				}
			}
			return false
		},
	}
}
