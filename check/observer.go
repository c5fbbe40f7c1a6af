package check

// Observer 接收一批检测的进度与结果
// 所有回调都在同一个收集协程中串行调用，实现无需加锁
type Observer interface {
	OnProgress(done, total int)
	OnResult(index int, r Result)
	OnBatchComplete()
}

// Hooks 以函数字段实现 Observer，未设置的回调忽略
type Hooks struct {
	ProgressFunc func(done, total int)
	ResultFunc   func(index int, r Result)
	CompleteFunc func()
}

func (h Hooks) OnProgress(done, total int) {
	if h.ProgressFunc != nil {
		h.ProgressFunc(done, total)
	}
}

func (h Hooks) OnResult(index int, r Result) {
	if h.ResultFunc != nil {
		h.ResultFunc(index, r)
	}
}

func (h Hooks) OnBatchComplete() {
	if h.CompleteFunc != nil {
		h.CompleteFunc()
	}
}
