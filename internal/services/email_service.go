package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/lmorrow/taskvault/internal/models"
	pkglogger "github.com/lmorrow/taskvault/pkg/logger"
)

// EmailService defines the interface for sending passcode emails
type EmailService interface {
	SendOtpEmail(ctx context.Context, email, otpType, code string, ttl time.Duration) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendOtpEmail sends a one-time passcode to the user. The subject and copy
// vary with the passcode purpose; the code itself never hits the logs.
func (s *AWSSESEmailService) SendOtpEmail(ctx context.Context, email, otpType, code string, ttl time.Duration) error {
	subject, intro := otpEmailCopy(otpType)
	minutes := int(ttl.Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f1f3f5; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <p>%s</p>
        <div class="code">%s</div>
        <div class="warning">
            <strong>Security notice:</strong> this code expires in %d minutes. Never share it with anyone.
        </div>
        <p><strong>Didn't request this?</strong><br>
        You can safely ignore this email. Nothing changes on your account without the code.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, subject, intro, code, minutes)

	textBody := fmt.Sprintf(`%s

%s

Your code: %s

Security notice: this code expires in %d minutes. Never share it with anyone.

Didn't request this? You can safely ignore this email. Nothing changes on your account without the code.

This is an automated message. Please do not reply to this email.
`, subject, intro, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send otp email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("otp_type", otpType),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("otp email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("otp_type", otpType),
		slog.String("message_id", *result.MessageId))

	return nil
}

func otpEmailCopy(otpType string) (subject, intro string) {
	switch otpType {
	case models.OtpTypeSignin:
		return "Your sign-in code",
			"Use this code to finish signing in to your account:"
	case models.OtpTypeEmailVerify:
		return "Verify your email address",
			"Use this code to confirm your email address:"
	case models.OtpTypePasswordReset:
		return "Reset your password",
			"Use this code to continue resetting your password:"
	case models.OtpTypeChangePass:
		return "Confirm your password change",
			"Use this code to confirm the password change on your account:"
	default:
		return "Your verification code",
			"Use this code to continue:"
	}
}
