package sid

import (
	"errors"
	"os"
	"strconv"

	"github.com/sony/sonyflake"
)

type Sid struct {
	sf *sonyflake.Sonyflake
}

func NewSid() *Sid {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		// 没有私有 IP 的环境（容器、CI）退化为使用进程号作为机器号
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			MachineID: func() (uint16, error) {
				return uint16(os.Getpid()), nil
			},
		})
	}
	if sf == nil {
		panic(errors.New("sonyflake not created"))
	}
	return &Sid{sf}
}

func (s Sid) GenString() (string, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 36), nil
}

func (s Sid) GenUint64() (uint64, error) {
	return s.sf.NextID()
}
