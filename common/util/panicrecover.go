package util

import (
	"fmt"
	"runtime/debug"

	"github.com/op/go-logging"
)

//	RecoverToLog runs f, turning a panic into an error log tagged with the
//	name of the task. panicked reports whether f panicked.
func RecoverToLog(name string, f func(), log *logging.Logger) (panicked bool) {
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		panicked = true
		if log == nil {
			return
		}
		log.Error(fmt.Sprintf("%s panicked: %v", name, x))
		log.Debug(string(debug.Stack()))
	}()
	f()
	return
}
