// Package oid генерирует и проверяет 24-символьные шестнадцатеричные
// идентификаторы записей. Раскладка повторяет ObjectID документного
// хранилища: четыре байта unix-времени, пять случайных байтов процесса
// и три байта монотонного счётчика.
package oid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	processEntropy [5]byte
	counter        uint32
)

func init() {
	if _, err := rand.Read(processEntropy[:]); err != nil {
		panic(fmt.Sprintf("oid: cannot seed process entropy: %v", err))
	}

	var seed [4]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(fmt.Sprintf("oid: cannot seed counter: %v", err))
	}
	counter = binary.BigEndian.Uint32(seed[:])
}

// New возвращает новый идентификатор в нижнем регистре.
func New() string {
	var b [12]byte

	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	copy(b[4:9], processEntropy[:])

	c := atomic.AddUint32(&counter, 1)
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)

	return hex.EncodeToString(b[:])
}

// Valid проверяет, что строка состоит ровно из 24 шестнадцатеричных
// символов нижнего регистра. Идентификаторы в другом виде отклоняются
// до обращения к хранилищу.
func Valid(id string) bool {
	if len(id) != 24 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
