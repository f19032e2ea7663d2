package sqlstore

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("rebind", func() {
	It("leaves SQLite placeholders alone", func() {
		s := &Store{dialect: SQLite}
		Expect(s.rebind("SELECT * FROM t WHERE a = ? AND b = ?")).To(Equal("SELECT * FROM t WHERE a = ? AND b = ?"))
	})

	It("numbers Postgres placeholders in order", func() {
		s := &Store{dialect: Postgres}
		Expect(s.rebind("INSERT INTO t (a, b, c) VALUES (?, ?, ?)")).To(Equal("INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"))
	})
})
