package inmemory_test

import (
	. "github.com/onsi/ginkgo/v2"

	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
	"github.com/papercomputeco/reel/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DriverSpecs(func() storage.Driver {
		return inmemory.NewDriver()
	})
})
