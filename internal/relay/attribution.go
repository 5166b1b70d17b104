package relay

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/prixcenter/wlink/internal/domain"
	"github.com/prixcenter/wlink/pkg/common"
)

// agentSettings decodes the attribution cache entries out of the
// schemaless instance settings.
func agentSettings(inst *domain.Instance) domain.AgentSettings {
	var out domain.AgentSettings
	if err := mapstructure.Decode(map[string]interface{}(inst.Settings), &out); err != nil {
		zap.L().Warn("unreadable instance settings",
			zap.String("instance", inst.Name), zap.Error(err))
	}
	return out
}

// cacheAgentSettings merges attribution entries into the instance
// settings. Best-effort: the cache is never authoritative and a failed
// write must not block the caller.
func (s *Service) cacheAgentSettings(ctx context.Context, inst *domain.Instance, entries map[string]interface{}) {
	fireAndForget("cache agent settings", func() error {
		merged := inst.Settings.Clone()
		for k, v := range entries {
			merged[k] = v
		}
		if err := s.store.UpdateInstanceSettings(ctx, inst.Name, merged); err != nil {
			return err
		}
		inst.Settings = merged
		return nil
	})
}

// resolveAgentUserID attributes an agent-sent message to a platform
// user. A live directory lookup by the sender's phone runs first and,
// when it succeeds, rewrites the cached mapping; the cache is the
// fallback when the lookup fails or misses. Empty means no attribution,
// which never blocks delivery.
func (s *Service) resolveAgentUserID(ctx context.Context, inst *domain.Instance, senderJid string) string {
	digits := common.NormalizeDigits(common.JidPhone(senderJid))
	if digits != "" {
		user, err := s.platform.FindUserByPhone(ctx, inst.LocationID, digits)
		if err != nil {
			zap.L().Warn("agent directory lookup failed, will use cached attribution",
				zap.String("instance", inst.Name), zap.Error(err))
		} else if user != nil && s.platform.IsValidUserID(user.ID, inst.LocationID) {
			s.cacheAgentSettings(ctx, inst, map[string]interface{}{
				domain.SettingAgentUserID: user.ID,
				domain.SettingAgentPhone:  digits,
			})
			return user.ID
		}
	}

	cached := agentSettings(inst)
	if cached.AgentUserID != "" && s.platform.IsValidUserID(cached.AgentUserID, inst.LocationID) {
		return cached.AgentUserID
	}
	return ""
}

// mapAgentByPhone refreshes the cached agent user id from a device
// phone observed in a connection event. Fire-and-forget by contract.
func (s *Service) mapAgentByPhone(ctx context.Context, inst *domain.Instance, digits string) {
	fireAndForget("map agent user by phone", func() error {
		user, err := s.platform.FindUserByPhone(ctx, inst.LocationID, digits)
		if err != nil {
			return err
		}
		if user == nil || !s.platform.IsValidUserID(user.ID, inst.LocationID) {
			return nil
		}
		s.cacheAgentSettings(ctx, inst, map[string]interface{}{
			domain.SettingAgentUserID: user.ID,
		})
		zap.L().Info("mapped agent user from device phone",
			zap.String("instance", inst.Name), zap.String("user_id", user.ID))
		return nil
	})
}
