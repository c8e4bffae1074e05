/*
 * Sinks - issue delivery.
 *
 * Copyright 2023 Marco Confalonieri.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// LogSink writes the transitions to the log.
type LogSink struct{}

// Raised implements Sink.
func (LogSink) Raised(_ context.Context, issue Issue) error {
	entry := log.WithFields(log.Fields{
		"issue":  issue.ID,
		"domain": issue.Domain,
	})
	if issue.Severity == SeverityError {
		entry.Errorf("%s: %s", issue.Title, issue.Message)
	} else {
		entry.Warnf("%s: %s", issue.Title, issue.Message)
	}
	return nil
}

// Cleared implements Sink.
func (LogSink) Cleared(_ context.Context, issue Issue) error {
	log.WithFields(log.Fields{
		"issue":  issue.ID,
		"domain": issue.Domain,
	}).Infof("Resolved: %s", issue.Title)
	return nil
}

// messageSender is the part of the bot API used by the sink.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends the transitions to a Telegram chat.
type TelegramSink struct {
	bot    messageSender
	chatID int64
}

// NewTelegramSink authenticates the bot and returns the sink.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Infof("Telegram notifications sent by %s", bot.Self.UserName)
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Raised implements Sink.
func (s *TelegramSink) Raised(_ context.Context, issue Issue) error {
	return s.send(fmt.Sprintf("⚠️ %s\n%s", issue.Title, issue.Message))
}

// Cleared implements Sink.
func (s *TelegramSink) Cleared(_ context.Context, issue Issue) error {
	return s.send(fmt.Sprintf("✅ Resolved: %s", issue.Title))
}

func (s *TelegramSink) send(text string) error {
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := s.bot.Send(msg)
	return err
}
