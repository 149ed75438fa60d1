package sqlinline

// QSelectIntegrationToken reads the provider API key kept as a fallback for
// deployments without the key in the environment.
const QSelectIntegrationToken = `--sql 3259c1cf-1214-4817-acf4-242710509566
select token
from integration_tokens
where provider = $1::text
limit 1;
`

// QUpsertIntegrationToken stores the key and merges $3 into the existing
// properties so rotation history is kept.
const QUpsertIntegrationToken = `--sql 6d78a817-0cb8-4ae9-a0bd-4b9b6d536b77
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql 185e7341-678b-469c-aca0-734e35a89cc7
delete from integration_tokens
where provider = $1::text;
`
