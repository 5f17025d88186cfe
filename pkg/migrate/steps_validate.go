package migrate

import (
	"context"
	"fmt"

	"github.com/wpshift/wpshift/pkg/seed"
	"github.com/wpshift/wpshift/pkg/state"
)

// stepValidate confirms the site is known on both sides and records the
// identifiers and connection parameters everything later depends on. A
// seed file replaces the directory service for the source side.
func stepValidate(ctx context.Context, mg *Migrator) error {
	f := &mg.m.Facts

	if mg.opts.SeedPath != "" {
		s, err := seed.Load(mg.opts.SeedPath)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}
		s.Apply(f)
		mg.m.SourceProfile = state.CustomProfile
		mg.logger.Info().
			Str("seed", mg.opts.SeedPath).
			Str("source_ip", f.SourceIP).
			Msg("source facts loaded from seed file")
	} else {
		if mg.source == nil {
			return fmt.Errorf("no source profile selected (pass --source <profile> or --seed <file>)")
		}
		site, err := mg.source.FindSite(ctx, mg.site)
		if err != nil {
			return err
		}
		server, err := mg.source.GetServer(ctx, site.ServerID)
		if err != nil {
			return err
		}
		user, err := mg.source.GetSystemUser(ctx, site.SystemUserID)
		if err != nil {
			return err
		}
		f.SourceSiteID = site.IDString()
		f.SourceServerID = site.ServerIDString()
		f.SourceSystemUser = site.SystemUserIDString()
		f.SourceIP = server.IP
		f.SourceUser = user.Username

		if domain, err := mg.source.FindDomain(ctx, mg.site); err == nil {
			f.SourceDomainID = domain.IDString()
			f.SourceSSL = fmt.Sprintf("%t", domain.SSLEnabled)
		} else {
			mg.logger.Warn().Err(err).Msg("source domain record not found, SSL state unknown")
		}
	}

	if mg.dest == nil {
		return fmt.Errorf("no destination profile selected (pass --dest <profile>)")
	}

	// Live check, not cache: confirming the destination site exists must
	// not trust stale data.
	exists, err := mg.dest.SiteExistsLive(ctx, mg.site)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("site %s does not exist on destination profile %s (create it there first, then re-run)",
			mg.site, mg.dest.ProfileName())
	}

	if err := resolveDest(ctx, mg); err != nil {
		return err
	}

	if f.SourcePort == "" {
		f.SourcePort = "22"
	}
	if f.DestPort == "" {
		f.DestPort = "22"
	}
	return nil
}

// resolveDest fills destination identifiers and connection parameters
// from the destination directory cache. Shared by validate and
// autodetect: facts the operator supplied (seed) win, lookups fill gaps.
func resolveDest(ctx context.Context, mg *Migrator) error {
	f := &mg.m.Facts

	site, err := mg.dest.FindSite(ctx, mg.site)
	if err != nil {
		return err
	}
	if f.DestSiteID == "" {
		f.DestSiteID = site.IDString()
	}
	if f.DestServerID == "" {
		f.DestServerID = site.ServerIDString()
	}
	if f.DestSystemUser == "" {
		f.DestSystemUser = site.SystemUserIDString()
	}
	if f.DestIP == "" {
		server, err := mg.dest.GetServer(ctx, site.ServerID)
		if err != nil {
			return err
		}
		f.DestIP = server.IP
	}
	if f.DestUser == "" {
		user, err := mg.dest.GetSystemUser(ctx, site.SystemUserID)
		if err != nil {
			return err
		}
		f.DestUser = user.Username
	}
	if f.DestDomainID == "" {
		if domain, err := mg.dest.FindDomain(ctx, mg.site); err == nil {
			f.DestDomainID = domain.IDString()
		}
	}
	return nil
}

func summaryValidate(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("source %s@%s:%s, dest %s@%s:%s",
		f.SourceUser, f.SourceIP, f.SourcePort, f.DestUser, f.DestIP, f.DestPort)
}

// stepAutodetect fills in any destination identifiers the operator did
// not supply, from the destination cache. A no-op when validate already
// resolved everything.
func stepAutodetect(ctx context.Context, mg *Migrator) error {
	if mg.dest == nil {
		return fmt.Errorf("no destination profile selected (pass --dest <profile>)")
	}
	return resolveDest(ctx, mg)
}

func summaryAutodetect(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("dest site=%s server=%s system-user=%s", f.DestSiteID, f.DestServerID, f.DestSystemUser)
}

// stepRoutes captures the site's canonical address form by probing it.
// The provider's routing metadata is not asked: it is not authoritative
// for sources it does not manage.
func stepRoutes(ctx context.Context, mg *Migrator) error {
	route, err := mg.detector.Detect(ctx, mg.site)
	if err != nil {
		return fmt.Errorf("route detection failed: %w", err)
	}
	mg.m.Facts.Route = string(route)
	mg.logger.Info().Str("route", string(route)).Msg("canonical route detected")
	return nil
}

func summaryRoutes(mg *Migrator) string {
	return "route: " + mg.m.Facts.Route
}

// stepConnect proves SSH reachability to both hosts before any stateful
// operation runs.
func stepConnect(ctx context.Context, mg *Migrator) error {
	src, err := mg.sourceHost()
	if err != nil {
		return err
	}
	dst, err := mg.destHost()
	if err != nil {
		return err
	}

	if _, err := mg.runner.Capture(ctx, src, "echo connected"); err != nil {
		return fmt.Errorf("source unreachable: %w", err)
	}
	mg.logger.Info().Str("host", src.Addr()).Msg("source reachable")

	if _, err := mg.runner.Capture(ctx, dst, "echo connected"); err != nil {
		return fmt.Errorf("destination unreachable: %w", err)
	}
	mg.logger.Info().Str("host", dst.Addr()).Msg("destination reachable")
	return nil
}

func summaryConnect(mg *Migrator) string {
	f := mg.m.Facts
	return fmt.Sprintf("verified %s and %s", f.SourceIP, f.DestIP)
}
