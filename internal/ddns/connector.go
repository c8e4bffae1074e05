/*
 * Connector - metered calls to the registrar.
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
package ddns

import (
	"context"
	"time"

	"porkbun-ddns/internal/metrics"
	"porkbun-ddns/internal/porkbun"
)

const (
	actPing          = "ping"
	actGetRecords    = "get_records"
	actCreateRecord  = "create_record"
	actEditRecord    = "edit_record"
	actGetDomainInfo = "get_domain_info"
)

// observe updates the API call metrics for an action.
func observe(action string, start time.Time, err error) {
	m := metrics.GetOpenMetricsInstance()
	if err != nil {
		m.IncFailedApiCallsTotal(action)
		return
	}
	m.IncSuccessfulApiCallsTotal(action)
	m.AddApiDelayHist(action, time.Since(start).Milliseconds())
}

// ping checks the credentials and returns the public IPv4.
func ping(ctx context.Context, client Registrar) (string, error) {
	start := time.Now()
	ip, err := client.Ping(ctx)
	observe(actPing, start, err)
	return ip, err
}

// fetchRecords fetches the records of one target.
func fetchRecords(ctx context.Context, client Registrar, domain string, key RecordKey) ([]porkbun.Record, error) {
	start := time.Now()
	records, err := client.GetRecords(ctx, domain, string(key.Type), key.APISubdomain())
	observe(actGetRecords, start, err)
	return records, err
}

// createRecord creates the record of one target.
func createRecord(ctx context.Context, client Registrar, domain string, key RecordKey, content string, ttl int) (string, error) {
	start := time.Now()
	id, err := client.CreateRecord(ctx, domain, string(key.Type), content, key.APISubdomain(), ttl)
	observe(actCreateRecord, start, err)
	return id, err
}

// editRecord sets the content of the records of one target.
func editRecord(ctx context.Context, client Registrar, domain string, key RecordKey, content string, ttl int) error {
	start := time.Now()
	err := client.EditRecordByNameType(ctx, domain, string(key.Type), content, key.APISubdomain(), ttl)
	observe(actEditRecord, start, err)
	return err
}

// fetchDomainInfo fetches the registration data of the domain.
func fetchDomainInfo(ctx context.Context, client Registrar, domain string) (*porkbun.DomainInfo, error) {
	start := time.Now()
	info, err := client.GetDomainInfo(ctx, domain)
	observe(actGetDomainInfo, start, err)
	return info, err
}
