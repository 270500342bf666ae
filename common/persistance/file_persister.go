package persistance

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/youtube/vitess/go/ioutil2"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/knob"
)

type FilePersister struct {
	Dir string
}

func (fp FilePersister) save(filename string, v interface{}) (err error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err = os.MkdirAll(fp.Dir, os.FileMode(0700)); err != nil {
		return
	}
	err = ioutil2.WriteFileAtomic(filepath.Join(fp.Dir, filename), encoded, os.FileMode(0600))
	return
}

func (fp FilePersister) load(filename string, v interface{}) (err error) {
	encoded, err := os.ReadFile(filepath.Join(fp.Dir, filename))
	if os.IsNotExist(err) {
		err = ErrNotPersisted
		return
	}
	if err != nil {
		return
	}
	err = json.Unmarshal(encoded, v)
	return
}

func (fp FilePersister) SaveStatus(status knob.Status) (err error) {
	return fp.save(STATUS_FILENAME, status)
}

func (fp FilePersister) LoadStatus() (status knob.Status, err error) {
	err = fp.load(STATUS_FILENAME, &status)
	return
}

func (fp FilePersister) DeleteStatus() (err error) {
	err = os.Remove(filepath.Join(fp.Dir, STATUS_FILENAME))
	if os.IsNotExist(err) {
		err = nil
	}
	return
}

func (fp FilePersister) SaveInfo(info ble.Info) (err error) {
	return fp.save(INFO_FILENAME, info)
}

func (fp FilePersister) LoadInfo() (info ble.Info, err error) {
	err = fp.load(INFO_FILENAME, &info)
	return
}
