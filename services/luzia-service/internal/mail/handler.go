package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/dentalcare/libs/events"
	"github.com/md-rashed-zaman/dentalcare/libs/kafkax"
)

// Directory keeps the clinic names used in messages.
type Directory interface {
	UpsertClinic(ctx context.Context, clinicID, name, timezone string) error
	ClinicName(ctx context.Context, clinicID string) (string, error)
}

// Handler consumes the auth topics. appURL is the web app base the token links point at.
func Handler(sender Sender, dir Directory, appURL string, logger *slog.Logger) kafkax.Handler {
	appURL = strings.TrimRight(appURL, "/")
	return func(ctx context.Context, msg kafka.Message) error {
		switch typ := kafkax.MetaOf(msg).EventType; typ {
		case events.ClinicCreated:
			var p events.ClinicCreatedPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				logger.Error("invalid clinic payload", "err", err)
				return nil
			}
			if p.ClinicID == "" {
				return errors.New("clinic event without clinic_id")
			}
			return dir.UpsertClinic(ctx, p.ClinicID, p.ClinicName, p.Timezone)

		case events.UserInvited:
			var p events.UserInvitedPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				logger.Error("invalid invite payload", "err", err)
				return nil
			}
			clinic, err := dir.ClinicName(ctx, p.ClinicID)
			if err != nil {
				return err
			}
			subject, body := inviteMail(p, clinic, link(appURL, "/convite", p.Token))
			return send(ctx, sender, p.Email, subject, body)

		case events.EmailConfirmationRequired, events.PasswordResetRequested:
			var p events.EmailTokenPayload
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				logger.Error("invalid email token payload", "err", err, "event_type", typ)
				return nil
			}
			var subject, body string
			if typ == events.EmailConfirmationRequired {
				subject, body = confirmationMail(p, link(appURL, "/confirmar-email", p.Token))
			} else {
				subject, body = resetMail(p, link(appURL, "/redefinir-senha", p.Token))
			}
			return send(ctx, sender, p.Email, subject, body)
		}
		return nil
	}
}

func send(ctx context.Context, sender Sender, to, subject, body string) error {
	if to == "" {
		return errors.New("email event without recipient")
	}
	if err := sender.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}

func link(base, path, token string) string {
	return base + path + "?token=" + url.QueryEscape(token)
}

func inviteMail(p events.UserInvitedPayload, clinic, href string) (string, string) {
	if clinic == "" {
		clinic = "DentalCare Pro"
	}
	subject := "Convite para " + clinic
	body := fmt.Sprintf("Olá %s,\n\nVocê foi convidado(a) para acessar %s no DentalCare Pro.\nAceite o convite em: %s\n\nO link expira em %s.",
		p.Name, clinic, href, p.ExpiresAt.UTC().Format("02/01/2006 15:04 UTC"))
	return subject, body
}

func confirmationMail(p events.EmailTokenPayload, href string) (string, string) {
	return "Confirme seu e-mail", fmt.Sprintf("Olá %s,\n\nConfirme seu e-mail em: %s", p.Name, href)
}

func resetMail(p events.EmailTokenPayload, href string) (string, string) {
	return "Redefinição de senha", fmt.Sprintf("Olá %s,\n\nPara criar uma nova senha acesse: %s\n\nSe você não pediu a redefinição, ignore este e-mail.", p.Name, href)
}
