package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
)

// SMTPMailer отправляет письма через внешний SMTP сервер.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer создаёт отправителя почты.
func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// SendEmail отправляет письмо одному получателю.
func (m *SMTPMailer) SendEmail(to, subject, body string) error {
	serverAddr := m.host + ":" + m.port

	tlsConfig := &tls.Config{
		ServerName: m.host,
	}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("mailer: не удалось установить TLS соединение: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mailer: не удалось создать SMTP клиент: %w", err)
	}
	defer client.Quit()

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mailer: ошибка аутентификации: %w", err)
		}
	}

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("mailer: ошибка команды MAIL: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("mailer: ошибка команды RCPT: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mailer: ошибка команды DATA: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("mailer: не удалось записать тело письма: %w", err)
	}

	return w.Close()
}
