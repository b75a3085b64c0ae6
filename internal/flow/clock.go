package flow

import "time"

// Clock 抽象定时器，测试中替换为手动时钟
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock 基于 time.AfterFunc
func RealClock() Clock {
	return realClock{}
}
