package container

import (
	"github.com/justapithecus/canv/iox"
	"github.com/justapithecus/canv/log"
)

// ValidateIms deep-validates a standalone Ims.
func ValidateIms(path string, logger *log.Logger) error {
	ims, err := OpenIms(path, true, logger)
	if err != nil {
		return err
	}
	iox.DiscardClose(ims)
	return nil
}

// ValidateCanv deep-validates a Canv and then its companion Ims.
func ValidateCanv(path string, logger *log.Logger) error {
	canv, err := OpenCanv(path, true, logger)
	if err != nil {
		return err
	}
	imsPath := canv.ImsPath()
	iox.DiscardClose(canv)
	return ValidateIms(imsPath, logger)
}
