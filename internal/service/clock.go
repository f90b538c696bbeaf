package service

import (
	"time"

	"github.com/qs3c/petvip_server/internal/model"
)

// Clock 业务时钟，“今天”按业务时区计算
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc, now: time.Now}
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today 业务时区下当天零点
func (c *Clock) Today() time.Time {
	return model.DateOf(c.now(), c.loc)
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// FormatDate 按业务时区输出日期
func (c *Clock) FormatDate(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}
