package notify

import (
	"github.com/sirupsen/logrus"

	"github.com/depannini/backend/internal/logger"
)

// LogSMSSender пишет SMS в лог вместо реальной отправки.
// TODO: подключить SMS провайдера (Twilio), когда появится контракт.
type LogSMSSender struct{}

// NewLogSMSSender создаёт заглушку отправителя SMS.
func NewLogSMSSender() *LogSMSSender {
	return &LogSMSSender{}
}

// SendSMS логирует сообщение. Номер телефона не маскируем: это dev заглушка.
func (s *LogSMSSender) SendSMS(to, body string) error {
	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"to": to,
		}).Infof("sms: %s", body)
	}
	return nil
}
