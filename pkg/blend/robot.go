package blend

import (
	"github.com/bitmuster/resultblend/pkg/blendresult"
)

// robotLibrary is the default Library, backed by blendresult.
type robotLibrary struct{}

// Ensure robotLibrary implements Library.
var _ Library = robotLibrary{}

// NewRobotLibrary returns a Library that blends Robot Framework output files.
func NewRobotLibrary() Library {
	return robotLibrary{}
}

func (robotLibrary) Blend(contents, names []string, limit int) (Result, error) {
	m, err := blendresult.Blend(contents, names, limit)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (robotLibrary) ParseToText(document string) (string, error) {
	return blendresult.ParseToText(document)
}
