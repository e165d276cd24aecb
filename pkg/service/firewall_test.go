// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

func int32p(v int32) *int32 { return &v }

func securityRuleRows(rules ...model.SecurityRule) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "security_group_id", "direction", "protocol", "port_from", "port_to",
		"source_cidr", "action", "priority", "created_at", "updated_at",
	})
	for _, r := range rules {
		var from, to any
		if r.PortFrom != nil {
			from = *r.PortFrom
		}
		if r.PortTo != nil {
			to = *r.PortTo
		}
		rows.AddRow(r.ID.String(), r.SecurityGroupID.String(), string(r.Direction), string(r.Protocol),
			from, to, r.SourceCidr, string(r.Action), r.Priority, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func securityGroupRow(g *model.SecurityGroup) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "vpc_id", "name", "is_default", "created_at", "updated_at"}).
		AddRow(g.ID.String(), g.VpcID.String(), g.Name, g.IsDefault, g.CreatedAt, g.UpdatedAt)
}

var _ = Describe("firewallRuleOf", func() {
	groupID := id.NewSecurityGroupID()

	It("renders an inbound allow with a single port", func() {
		r := model.SecurityRule{
			ID: id.NewSecurityRuleID(), SecurityGroupID: groupID,
			Direction: model.DirectionInbound, Protocol: model.ProtocolTCP,
			PortFrom: int32p(22), PortTo: int32p(22),
			SourceCidr: "0.0.0.0/0", Action: model.ActionAllow, Priority: 100,
		}
		rule := firewallRuleOf(r)
		Expect(rule.Type).To(Equal("in"))
		Expect(rule.Action).To(Equal("ACCEPT"))
		Expect(rule.Proto).To(Equal("tcp"))
		Expect(rule.Dport).To(Equal("22"))
		Expect(rule.Source).To(Equal("0.0.0.0/0"))
		Expect(rule.Dest).To(BeEmpty())
		Expect(rule.Enable).To(Equal(1))
		Expect(rule.Comment).To(Equal(r.ID.String()))
	})

	It("renders a port range", func() {
		r := model.SecurityRule{
			Direction: model.DirectionInbound, Protocol: model.ProtocolUDP,
			PortFrom: int32p(8000), PortTo: int32p(8080), Action: model.ActionAllow,
		}
		rule := firewallRuleOf(r)
		Expect(rule.Proto).To(Equal("udp"))
		Expect(rule.Dport).To(Equal("8000:8080"))
	})

	It("renders an outbound deny-all against the destination", func() {
		r := model.SecurityRule{
			Direction: model.DirectionOutbound, Protocol: model.ProtocolAll,
			SourceCidr: "0.0.0.0/0", Action: model.ActionDeny,
			Priority: model.DenyAllPriority,
		}
		rule := firewallRuleOf(r)
		Expect(rule.Type).To(Equal("out"))
		Expect(rule.Action).To(Equal("DROP"))
		Expect(rule.Proto).To(BeEmpty())
		Expect(rule.Dport).To(BeEmpty())
		Expect(rule.Dest).To(Equal("0.0.0.0/0"))
		Expect(rule.Source).To(BeEmpty())
	})

	It("renders icmp without ports", func() {
		r := model.SecurityRule{Direction: model.DirectionInbound, Protocol: model.ProtocolICMP, Action: model.ActionAllow}
		rule := firewallRuleOf(r)
		Expect(rule.Proto).To(Equal("icmp"))
		Expect(rule.Dport).To(BeEmpty())
	})
})

var _ = Describe("guest firewall sync", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	AfterEach(func() {
		env.close()
	})

	allowSSH := func() model.SecurityRule {
		return model.SecurityRule{
			ID: id.NewSecurityRuleID(), Direction: model.DirectionInbound,
			Protocol: model.ProtocolTCP, PortFrom: int32p(22), PortTo: int32p(22),
			SourceCidr: "0.0.0.0/0", Action: model.ActionAllow, Priority: 100,
		}
	}
	denyAll := func(dir model.RuleDirection) model.SecurityRule {
		return model.SecurityRule{
			ID: id.NewSecurityRuleID(), Direction: dir, Protocol: model.ProtocolAll,
			SourceCidr: "0.0.0.0/0", Action: model.ActionDeny, Priority: model.DenyAllPriority,
		}
	}

	It("installs the rules top-down by priority with the deny-alls last", func() {
		ssh := allowSSH()
		denyIn := denyAll(model.DirectionInbound)
		denyOut := denyAll(model.DirectionOutbound)

		// deliberately out of order
		err := env.services.SecurityGroups.syncGuestFirewall(context.Background(), "pve1", 100,
			[]model.SecurityRule{denyIn, ssh, denyOut})
		Expect(err).NotTo(HaveOccurred())

		Expect(env.proxmox.FirewallEnabled[100]).To(BeTrue())
		table := env.proxmox.Firewall[100]
		Expect(table).To(HaveLen(3))
		Expect(table[0].Comment).To(Equal(ssh.ID.String()))
		Expect(table[0].Pos).To(Equal(0))
		Expect(table[1].Priority).To(Equal(model.DenyAllPriority))
		Expect(table[2].Priority).To(Equal(model.DenyAllPriority))
	})

	It("replaces a stale table instead of appending to it", func() {
		stale := allowSSH()
		Expect(env.services.SecurityGroups.syncGuestFirewall(context.Background(), "pve1", 100,
			[]model.SecurityRule{stale})).To(Succeed())

		fresh := allowSSH()
		Expect(env.services.SecurityGroups.syncGuestFirewall(context.Background(), "pve1", 100,
			[]model.SecurityRule{fresh})).To(Succeed())

		table := env.proxmox.Firewall[100]
		Expect(table).To(HaveLen(1))
		Expect(table[0].Comment).To(Equal(fresh.ID.String()))
	})
})

var _ = Describe("SecurityGroupService rule propagation", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	AfterEach(func() {
		env.close()
	})

	It("pushes a new rule to every guest of the VPC", func() {
		org := model.OrganizationFixture()
		vpc := model.VPCFixture(func(v *model.VPC) { v.OrganizationID = org.ID })
		group := &model.SecurityGroup{ID: id.NewSecurityGroupID(), VpcID: vpc.ID, Name: "web"}
		instance := model.InstanceFixture()

		// the guest the sync has to reach
		_, err := env.proxmox.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
		Expect(err).NotTo(HaveOccurred())

		rule := model.SecurityRule{
			ID: id.NewSecurityRuleID(), SecurityGroupID: group.ID,
			Direction: model.DirectionInbound, Protocol: model.ProtocolTCP,
			PortFrom: int32p(443), PortTo: int32p(443),
			SourceCidr: "0.0.0.0/0", Action: model.ActionAllow, Priority: 200,
		}

		env.mock.ExpectQuery("FROM security_groups").WillReturnRows(securityGroupRow(group))
		env.mock.ExpectQuery("FROM vpcs").WillReturnRows(vpcRow(vpc))
		env.mock.ExpectQuery("INSERT INTO security_rules").WillReturnRows(securityRuleRows(rule))
		env.mock.ExpectQuery("FROM security_rules").WillReturnRows(securityRuleRows(rule))
		env.mock.ExpectQuery("FROM instances").WillReturnRows(instanceRow(instance))

		created, err := env.services.SecurityGroups.CreateRule(context.Background(), userPrincipal(), CreateRuleRequest{
			GroupID:    group.ID,
			Direction:  model.DirectionInbound,
			Protocol:   model.ProtocolTCP,
			PortFrom:   int32p(443),
			PortTo:     int32p(443),
			SourceCidr: "0.0.0.0/0",
			Action:     model.ActionAllow,
			Priority:   200,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Priority).To(Equal(int32(200)))

		Expect(env.proxmox.FirewallEnabled[100]).To(BeTrue())
		table := env.proxmox.Firewall[100]
		Expect(table).To(HaveLen(1))
		Expect(table[0].Comment).To(Equal(rule.ID.String()))
		Expect(table[0].Dport).To(Equal("443"))
	})

	It("keeps the database authoritative when a guest is unreachable", func() {
		org := model.OrganizationFixture()
		vpc := model.VPCFixture(func(v *model.VPC) { v.OrganizationID = org.ID })
		group := &model.SecurityGroup{ID: id.NewSecurityGroupID(), VpcID: vpc.ID, Name: "web"}
		// no VM registered on the fake, ExecutionNode cannot find it
		instance := model.InstanceFixture()
		rule := model.SecurityRule{ID: id.NewSecurityRuleID(), SecurityGroupID: group.ID,
			Direction: model.DirectionInbound, Protocol: model.ProtocolAll,
			SourceCidr: "0.0.0.0/0", Action: model.ActionAllow, Priority: 10}

		env.mock.ExpectQuery("FROM security_groups").WillReturnRows(securityGroupRow(group))
		env.mock.ExpectQuery("FROM vpcs").WillReturnRows(vpcRow(vpc))
		env.mock.ExpectQuery("INSERT INTO security_rules").WillReturnRows(securityRuleRows(rule))
		env.mock.ExpectQuery("FROM security_rules").WillReturnRows(securityRuleRows(rule))
		env.mock.ExpectQuery("FROM instances").WillReturnRows(instanceRow(instance))

		_, err := env.services.SecurityGroups.CreateRule(context.Background(), userPrincipal(), CreateRuleRequest{
			GroupID:    group.ID,
			Direction:  model.DirectionInbound,
			Protocol:   model.ProtocolAll,
			SourceCidr: "0.0.0.0/0",
			Action:     model.ActionAllow,
			Priority:   10,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(env.proxmox.Firewall).To(BeEmpty())
	})
})
