package persistance

import (
	"sync"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/knob"
)

type MemoryPersister struct {
	sync.Mutex
	status *knob.Status
	info   *ble.Info
}

func (mp *MemoryPersister) SaveStatus(status knob.Status) (err error) {
	mp.Lock()
	defer mp.Unlock()
	mp.status = &status
	return
}

func (mp *MemoryPersister) LoadStatus() (status knob.Status, err error) {
	mp.Lock()
	defer mp.Unlock()
	if mp.status == nil {
		err = ErrNotPersisted
		return
	}
	status = *mp.status
	return
}

func (mp *MemoryPersister) DeleteStatus() (err error) {
	mp.Lock()
	defer mp.Unlock()
	mp.status = nil
	return
}

func (mp *MemoryPersister) SaveInfo(info ble.Info) (err error) {
	mp.Lock()
	defer mp.Unlock()
	mp.info = &info
	return
}

func (mp *MemoryPersister) LoadInfo() (info ble.Info, err error) {
	mp.Lock()
	defer mp.Unlock()
	if mp.info == nil {
		err = ErrNotPersisted
		return
	}
	info = *mp.info
	return
}
